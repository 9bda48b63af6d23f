package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/config"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/runtime"
	"github.com/Nihal-Srivastava05/Operative-sub000/internal/workflow"
)

var (
	runStorePath string
	runLogPath   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordinator",
	Long: `Start the coordinator runtime: the agent registry, task queue,
shared memory store, and workflow engine, serving bus traffic until
interrupted.

Workflow definitions are loaded from the configured definitions
directory and reloaded when files there change.

Examples:
  operative run
  operative run --store /tmp/operative.db
  operative run --log .operative/logs/debug.log`,
	RunE: runCoordinator,
}

func init() {
	runCmd.Flags().StringVar(&runStorePath, "store", "", "Path to the state database (default: .operative/state.db)")
	runCmd.Flags().StringVar(&runLogPath, "log", "", "Path to a debug log file")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := runtime.New(cfg, runtime.Options{StorePath: runStorePath, LogPath: runLogPath})
	if err != nil {
		return err
	}
	defer rt.Stop()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	rt.Start(ctx)

	definitions := loadDefinitions(cfg.Workflow.DefinitionsDir)
	fmt.Printf("operative coordinator running (%d workflow definitions, store %s)\n",
		len(definitions), storeDescription(cfg, runStorePath))

	watcher, err := watchDefinitions(cfg.Workflow.DefinitionsDir)
	if err == nil && watcher != nil {
		defer watcher.Close()
		go func() {
			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
						continue
					}
					switch filepath.Ext(event.Name) {
					case ".yaml", ".yml":
					default:
						continue
					}
					def, err := workflow.LoadDefinition(event.Name)
					if err != nil {
						log.Printf("[run] reload %s: %v", event.Name, err)
						continue
					}
					log.Printf("[run] loaded workflow definition %s (%d steps)", def.ID, len(def.Steps))
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[run] watch definitions: %v", err)
				}
			}
		}()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-signals:
		fmt.Printf("\nreceived %s, shutting down\n", sig)
	case <-ctx.Done():
	}
	return nil
}

// loadDefinitions loads the definitions directory, tolerating its absence.
func loadDefinitions(dir string) []string {
	defs, err := workflow.LoadDefinitions(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[run] load workflow definitions: %v", err)
		}
		return nil
	}
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID)
	}
	return ids
}

// watchDefinitions sets up an fsnotify watch on the definitions dir.
func watchDefinitions(dir string) (*fsnotify.Watcher, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return watcher, nil
}

func storeDescription(cfg *config.Config, flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return filepath.Join(".operative", "state.db")
}
