package bus

import "github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"

// Filter restricts which messages a subscription receives. A nil filter
// matches everything; within a filter, empty fields are unconstrained.
type Filter struct {
	// Types limits delivery to these message types.
	Types []protocol.MessageType
	// SourceID limits delivery to messages from this agent instance.
	SourceID string
}

// Matches returns true if the message passes the filter.
func (f *Filter) Matches(msg protocol.Message) bool {
	if f == nil {
		return true
	}
	if f.SourceID != "" && msg.Source.ID != f.SourceID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == msg.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
