package router

import (
	"context"
	"errors"
	"testing"
)

// stubOracle returns a canned decision or error.
type stubOracle struct {
	decision Decision
	err      error
}

func (s *stubOracle) Route(ctx context.Context, candidates []string, request string) (Decision, error) {
	return s.decision, s.err
}

func TestPickValidDecision(t *testing.T) {
	r := NewRouter(&stubOracle{decision: Decision{Choice: "researcher", RewrittenTask: "find recent papers on raft"}})

	decision, err := r.Pick(context.Background(), []string{"researcher", "writer"}, "look into raft")
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if decision.Choice != "researcher" {
		t.Errorf("expected researcher, got %q", decision.Choice)
	}
	if decision.RewrittenTask != "find recent papers on raft" {
		t.Errorf("rewritten task lost: %q", decision.RewrittenTask)
	}
}

func TestPickRejectsUnknownChoice(t *testing.T) {
	r := NewRouter(&stubOracle{decision: Decision{Choice: "hacker"}})

	if _, err := r.Pick(context.Background(), []string{"researcher", "writer"}, "do something"); err == nil {
		t.Fatal("unknown choice must be rejected")
	}
}

func TestPickFallsBackToOriginalRequest(t *testing.T) {
	r := NewRouter(&stubOracle{decision: Decision{Choice: "writer"}})

	decision, err := r.Pick(context.Background(), []string{"writer"}, "draft the announcement")
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if decision.RewrittenTask != "draft the announcement" {
		t.Errorf("empty rewrite should fall back to the request, got %q", decision.RewrittenTask)
	}
}

func TestPickPropagatesOracleError(t *testing.T) {
	oracleErr := errors.New("model unavailable")
	r := NewRouter(&stubOracle{err: oracleErr})

	if _, err := r.Pick(context.Background(), []string{"writer"}, "anything"); !errors.Is(err, oracleErr) {
		t.Fatalf("expected wrapped oracle error, got %v", err)
	}
}

func TestPickRequiresCandidates(t *testing.T) {
	r := NewRouter(&stubOracle{decision: Decision{Choice: "writer"}})
	if _, err := r.Pick(context.Background(), nil, "anything"); err == nil {
		t.Fatal("empty candidate set must be rejected")
	}
}
