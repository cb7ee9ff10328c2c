package session

import (
	"fmt"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// Session is the durable per-(platform,user) conversational state. Its
// JSON form is the wire format written to the store.
type Session struct {
	History           []contractx.Turn `json:"history"`
	SystemInstruction string           `json:"system_instruction"`
}

func New(instruction string) *Session {
	return &Session{
		History:           make([]contractx.Turn, 0, 8),
		SystemInstruction: instruction,
	}
}

func (s *Session) Append(turns ...contractx.Turn) {
	s.History = append(s.History, turns...)
}

// Truncate drops the oldest turns so at most max entries remain. It
// never drops from the recent end, and it never starts the kept window
// inside a tool round-trip: a replay has to open with a user turn, so
// any leading non-user turns the cut exposed are dropped too.
func (s *Session) Truncate(max int) {
	if max <= 0 || len(s.History) <= max {
		return
	}
	kept := s.History[len(s.History)-max:]
	for len(kept) > 0 && kept[0].Role != contractx.RoleUser {
		kept = kept[1:]
	}
	s.History = append(s.History[:0:0], kept...)
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := &Session{
		History:           append([]contractx.Turn(nil), s.History...),
		SystemInstruction: s.SystemInstruction,
	}
	return clone
}

// ValidateAlternation checks the replay invariant: no two consecutive
// user turns, and every tool-call turn is immediately followed by
// exactly one tool-result turn.
func (s *Session) ValidateAlternation() error {
	for i, turn := range s.History {
		switch turn.Role {
		case contractx.RoleUser:
			if i > 0 && s.History[i-1].Role == contractx.RoleUser {
				return fmt.Errorf("consecutive user turns at index %d", i)
			}
		case contractx.RoleToolCall:
			if i+1 >= len(s.History) || s.History[i+1].Role != contractx.RoleToolResult {
				return fmt.Errorf("tool call at index %d has no following tool result", i)
			}
		case contractx.RoleToolResult:
			if i == 0 || s.History[i-1].Role != contractx.RoleToolCall {
				return fmt.Errorf("tool result at index %d has no preceding tool call", i)
			}
		}
	}
	return nil
}
