// Package session tracks the per-user runtime state of a conversation flow.
// A session records what the flow is currently waiting for; everything the
// user has answered lives in the vars store, not here.
package session

import (
	"github.com/m3rciful/flowbot/core/flow/graph"
	"github.com/m3rciful/flowbot/core/flow/validate"
)

// Wait captures a pending input request: which node asked, what kinds of
// input it takes, how the answer is checked, and where to go afterwards.
type Wait struct {
	NodeID      string
	Variable    string
	Modes       []graph.InputKind
	Validate    validate.Kind
	MinLen      int
	MaxLen      int
	Retry       string
	OnSaved     string
	Next        string
	Buttons []graph.Button
}

// Accepts reports whether the wait takes the given input kind. An empty
// mode list means plain text.
func (w *Wait) Accepts(kind graph.InputKind) bool {
	if w == nil {
		return false
	}
	if len(w.Modes) == 0 {
		return kind == graph.InputText
	}
	for _, m := range w.Modes {
		if m == kind {
			return true
		}
	}
	return false
}

// WaitFor builds a Wait from a node's input spec. Actionable keyboard
// buttons ride along so a press can answer or bypass the collection.
func WaitFor(n graph.Node) *Wait {
	if n.Input == nil {
		return nil
	}
	w := &Wait{
		NodeID:   n.ID,
		Variable: n.Input.Variable,
		Modes:    n.Input.Modes,
		Validate: n.Input.Validate,
		MinLen:   n.Input.MinLen,
		MaxLen:   n.Input.MaxLen,
		Retry:    n.Input.Retry,
		OnSaved:  n.Input.OnSaved,
		Next:     n.Next,
	}
	for _, b := range n.Keyboard {
		if b.Skip || b.Target != "" || b.Value != "" {
			w.Buttons = append(w.Buttons, b)
		}
	}
	return w
}

// CondWaitFor builds a Wait for a conditional override that keeps the flow
// paused. The wait reuses the node's input spec but routes through the
// condition's next and carries the condition's buttons.
func CondWaitFor(n graph.Node) *Wait {
	if n.Condition == nil || !n.Condition.WaitForInput {
		return nil
	}
	w := WaitFor(n)
	if w == nil {
		w = &Wait{NodeID: n.ID, Next: n.Next}
	}
	if n.Condition.Next != "" {
		w.Next = n.Condition.Next
	}
	w.Buttons = nil
	for _, b := range n.Condition.Keyboard {
		w.Buttons = append(w.Buttons, b)
	}
	return w
}

// Session is the mutable per-user flow state.
type Session struct {
	// Wait is the node input currently awaited, nil when idle.
	Wait *Wait
	// CondWait is a conditional override awaited on top of Wait. It is
	// consulted first and cleared once answered.
	CondWait *Wait
	// LastMessageID is the id of the last bot message, used for in-place
	// edits instead of stacking new messages.
	LastMessageID int
	// CondShown marks that the last render came from a conditional
	// override, so a repeated answer re-renders instead of advancing.
	CondShown bool
}

// Idle reports whether the session awaits nothing.
func (s Session) Idle() bool {
	return s.Wait == nil && s.CondWait == nil
}

// ClearWaits drops both pending waits, leaving the session idle.
func (s *Session) ClearWaits() {
	s.Wait = nil
	s.CondWait = nil
	s.CondShown = false
}
