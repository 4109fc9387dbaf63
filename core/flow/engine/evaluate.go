package engine

import (
	"context"
	"log/slog"

	"github.com/m3rciful/flowbot/core/flow/graph"
	"github.com/m3rciful/flowbot/core/flow/session"
	"github.com/m3rciful/flowbot/core/flow/template"
	"github.com/m3rciful/flowbot/core/logger"
)

// step is the outcome of evaluating a single node: what to show, what to
// wait for, and where to continue when nothing pauses the flow.
type step struct {
	render   *Message
	wait     *session.Wait
	condWait *session.Wait
	next     string
}

// evaluate resolves one node against the user's variables. The conditional
// override is checked first; when its variable already holds a value the
// condition's text, keyboard, and routing replace the node's own.
func (c *Controller) evaluate(ctx context.Context, userID int64, node graph.Node) step {
	if node.Condition != nil && c.hasValue(ctx, userID, node.Condition.Variable) {
		return c.evaluateConditional(ctx, userID, node)
	}

	switch node.Kind {
	case graph.KindBranch, graph.KindPassthrough:
		return step{next: node.Next}
	}

	st := step{
		render: &Message{
			Text:     c.renderText(ctx, userID, node.Text),
			Keyboard: Rows(c.renderButtons(ctx, userID, node.Keyboard)),
		},
	}
	if w := session.WaitFor(node); w != nil {
		w.Buttons = c.renderButtons(ctx, userID, w.Buttons)
		st.wait = w
	} else {
		st.next = node.Next
	}
	return st
}

func (c *Controller) evaluateConditional(ctx context.Context, userID int64, node graph.Node) step {
	cond := node.Condition

	if node.Kind == graph.KindBranch || node.Kind == graph.KindPassthrough {
		next := cond.Next
		if next == "" {
			next = node.Next
		}
		return step{next: next}
	}

	// a condition with no text of its own and no wait is a silent skip:
	// the question was already answered, move on without re-asking. This
	// deliberately does not fall back to the node's base text, which would
	// re-show a prompt the stored value already satisfies.
	if cond.Text == "" && !cond.WaitForInput {
		next := cond.Next
		if next == "" {
			next = node.Next
		}
		return step{next: next}
	}

	text := cond.Text
	if text == "" {
		text = node.Text
	}
	keyboard := cond.Keyboard
	if len(keyboard) == 0 {
		keyboard = node.Keyboard
	}
	st := step{
		render: &Message{
			Text:     c.renderText(ctx, userID, text),
			Keyboard: Rows(c.renderButtons(ctx, userID, keyboard)),
		},
	}
	if cond.WaitForInput {
		w := session.CondWaitFor(node)
		w.Buttons = c.renderButtons(ctx, userID, w.Buttons)
		st.condWait = w
		return st
	}
	if cond.Next != "" {
		st.next = cond.Next
	} else {
		st.next = node.Next
	}
	return st
}

// renderText substitutes placeholders with stored variable values. Lookup
// failures degrade to the bare placeholder name, never to an error.
func (c *Controller) renderText(ctx context.Context, userID int64, text string) string {
	names := template.Placeholders(text)
	if len(names) == 0 {
		return text
	}
	values := make(map[string]string, len(names))
	for _, name := range names {
		v, ok, err := c.vars.Get(ctx, userID, name)
		if err != nil {
			logger.Warn(ctx, "flow", "render.lookup_failed",
				slog.String("variable", name),
				slog.String("err", err.Error()),
			)
			continue
		}
		if ok {
			values[name] = v
		}
	}
	return template.Render(text, values)
}

// renderButtons substitutes placeholders in button labels so the keyboard
// the user sees matches the labels presses are later matched against. The
// slice is copied only when a label actually carries a placeholder.
func (c *Controller) renderButtons(ctx context.Context, userID int64, buttons []graph.Button) []graph.Button {
	templated := false
	for _, b := range buttons {
		if len(template.Placeholders(b.Label)) > 0 {
			templated = true
			break
		}
	}
	if !templated {
		return buttons
	}
	out := make([]graph.Button, len(buttons))
	copy(out, buttons)
	for i := range out {
		out[i].Label = c.renderText(ctx, userID, out[i].Label)
	}
	return out
}

func (c *Controller) hasValue(ctx context.Context, userID int64, name string) bool {
	has, err := c.vars.HasValue(ctx, userID, name)
	if err != nil {
		logger.Warn(ctx, "flow", "condition.lookup_failed",
			slog.String("variable", name),
			slog.String("err", err.Error()),
		)
		return false
	}
	return has
}
