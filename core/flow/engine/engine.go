// Package engine drives conversation flows: it applies user input to the
// current session, persists collected variables, and walks the graph until
// the next node that needs the user again.
//
// State changes before delivery. A session mutation that reached the store
// stays valid even when the outbound send fails, so a flaky transport can
// delay a message but never desynchronize the flow.
package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/m3rciful/flowbot/core/flow/graph"
	"github.com/m3rciful/flowbot/core/flow/session"
	"github.com/m3rciful/flowbot/core/flow/validate"
	"github.com/m3rciful/flowbot/core/flow/vars"
	"github.com/m3rciful/flowbot/core/logger"
)

// Outcome status values.
const (
	// StatusPaused means the flow stopped at a node awaiting input.
	StatusPaused = "paused"
	// StatusAdvanced means at least one transition fired this turn.
	StatusAdvanced = "advanced"
	// StatusIgnored means the input did not apply to the current state.
	StatusIgnored = "ignored"
)

// Event is one unit of user input, already stripped of transport details.
type Event struct {
	UserID int64
	Kind   graph.InputKind
	// Text carries typed text, or the label of a pressed reply button.
	Text string
	// Target carries the node id from an inline callback press.
	Target string
	// PhotoID is the transport file id of an uploaded photo.
	PhotoID string
}

// Outcome summarizes what a turn did.
type Outcome struct {
	Status string
	// NodeID is where the flow now rests.
	NodeID string
	// Hops counts transitions taken during this turn.
	Hops int
}

// Controller is the flow engine. One instance serves all users; per-user
// serialization comes from the session store.
type Controller struct {
	graph    *graph.Graph
	sessions *session.Store
	vars     vars.Store
	delivery Delivery
	observer Observer
	metrics  *Metrics
	maxHops  int
}

// Options configures optional controller collaborators.
type Options struct {
	Observer Observer
	Metrics  *Metrics
	// MaxHops bounds the auto-advance chain per turn. Zero applies the
	// default of 25.
	MaxHops int
}

const defaultMaxHops = 25

// New wires a controller over a validated graph.
func New(g *graph.Graph, sessions *session.Store, store vars.Store, delivery Delivery, opts Options) *Controller {
	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	return &Controller{
		graph:    g,
		sessions: sessions,
		vars:     store,
		delivery: delivery,
		observer: opts.Observer,
		metrics:  opts.Metrics,
		maxHops:  maxHops,
	}
}

// Start begins (or restarts) the flow for a user from the graph entry node.
func (c *Controller) Start(ctx context.Context, userID int64) (Outcome, error) {
	ctx = logger.WithTurnID(ctx, newTurnID())
	var out Outcome
	err := c.sessions.WithLock(userID, func(sess *session.Session) error {
		sess.ClearWaits()
		sess.LastMessageID = 0
		var err error
		out, err = c.advance(ctx, sess, userID, c.graph.Start(), false)
		return err
	})
	c.logTurn(ctx, userID, "start", out, err)
	return out, err
}

// Reset drops the user's session and, when asked, their collected variables.
func (c *Controller) Reset(ctx context.Context, userID int64, clearVariables bool) error {
	c.sessions.Reset(userID)
	if clearVariables {
		if err := c.vars.Clear(ctx, userID); err != nil {
			return err
		}
	}
	logger.Info(ctx, "flow", "session.reset",
		slog.Int64("user_id", userID),
		slog.Bool("payload", clearVariables),
	)
	return nil
}

// Handle applies one input event to the user's session.
func (c *Controller) Handle(ctx context.Context, ev Event) (Outcome, error) {
	ctx = logger.WithTurnID(ctx, newTurnID())
	var out Outcome
	err := c.sessions.WithLock(ev.UserID, func(sess *session.Session) error {
		c.observeInbound(ctx, sess, ev)
		var err error
		out, err = c.dispatch(ctx, sess, ev)
		return err
	})
	c.metrics.turn(out.Status)
	c.metrics.hops(out.Hops)
	c.logTurn(ctx, ev.UserID, "turn", out, err)
	return out, err
}

func (c *Controller) dispatch(ctx context.Context, sess *session.Session, ev Event) (Outcome, error) {
	switch {
	case sess.CondWait != nil:
		return c.answerWait(ctx, sess, ev, true)
	case sess.Wait != nil:
		return c.answerWait(ctx, sess, ev, false)
	}

	// idle: only an explicit jump means anything
	if ev.Kind == graph.InputButton && ev.Target != "" {
		return c.advance(ctx, sess, ev.UserID, ev.Target, true)
	}
	return Outcome{Status: StatusIgnored}, nil
}

// answerWait consumes input against the pending wait. The conditional wait,
// when present, always answers first.
func (c *Controller) answerWait(ctx context.Context, sess *session.Session, ev Event, conditional bool) (Outcome, error) {
	w := sess.Wait
	if conditional {
		w = sess.CondWait
	}

	if ev.Kind == graph.InputButton {
		if b, ok := matchButton(w.Buttons, ev); ok {
			return c.answerButton(ctx, sess, ev, w, b, conditional)
		}
		// a press that matches nothing pending is stale
		return Outcome{Status: StatusIgnored, NodeID: w.NodeID}, nil
	}

	// reply keyboards arrive as plain text; a label that matches a pending
	// button counts as pressing it
	if ev.Kind == graph.InputText {
		if b, ok := matchButton(w.Buttons, Event{Text: ev.Text}); ok {
			return c.answerButton(ctx, sess, ev, w, b, conditional)
		}
	}

	if !w.Accepts(ev.Kind) {
		return Outcome{Status: StatusIgnored, NodeID: w.NodeID}, nil
	}

	raw := ev.Text
	if ev.Kind == graph.InputPhoto {
		raw = ev.PhotoID
	}

	if ev.Kind == graph.InputText {
		if verr := validate.Check(raw, w.Validate, w.MinLen, w.MaxLen); verr != nil {
			return c.rejectInput(ctx, sess, ev.UserID, w, verr)
		}
	}

	if w.Variable != "" {
		if err := c.vars.Set(ctx, ev.UserID, w.Variable, raw); err != nil {
			return Outcome{Status: StatusPaused, NodeID: w.NodeID}, err
		}
		c.observe(Record{
			TurnID:    logger.TurnIDFrom(ctx),
			UserID:    ev.UserID,
			Direction: DirectionIn,
			NodeID:    w.NodeID,
			Variable:  w.Variable,
			Text:      raw,
		})
	}

	c.confirmSaved(ctx, sess, ev.UserID, w)
	next := w.Next
	c.clearAnswered(sess, conditional)
	return c.advance(ctx, sess, ev.UserID, next, false)
}

// answerButton resolves a pressed button against the wait that offered it.
// Skip buttons and bare navigation buttons jump without writing; buttons
// with a value persist it first.
func (c *Controller) answerButton(ctx context.Context, sess *session.Session, ev Event, w *session.Wait, b graph.Button, conditional bool) (Outcome, error) {
	if !b.Skip && b.Value != "" && w.Variable != "" {
		if err := c.vars.Set(ctx, ev.UserID, w.Variable, b.Value); err != nil {
			return Outcome{Status: StatusPaused, NodeID: w.NodeID}, err
		}
		c.confirmSaved(ctx, sess, ev.UserID, w)
	}
	next := b.Target
	if next == "" {
		next = w.Next
	}
	c.clearAnswered(sess, conditional)
	return c.advance(ctx, sess, ev.UserID, next, true)
}

// rejectInput sends the retry prompt and leaves every bit of state as it
// was, so the user simply answers again.
func (c *Controller) rejectInput(ctx context.Context, sess *session.Session, userID int64, w *session.Wait, verr error) (Outcome, error) {
	c.metrics.validationFailure(string(w.Validate))
	logger.Debug(ctx, "flow", "input.rejected",
		slog.String("node_id", w.NodeID),
		slog.String("kind", string(w.Validate)),
		slog.String("err_code", errorCode(verr)),
	)
	retry := w.Retry
	if retry == "" {
		retry = defaultRetryText(w.Validate)
	}
	c.deliver(ctx, sess, userID, Message{Text: c.renderText(ctx, userID, retry), ForceNew: true}, w.NodeID)
	return Outcome{Status: StatusPaused, NodeID: w.NodeID}, nil
}

// confirmSaved sends the node's acknowledgement line, if it has one.
func (c *Controller) confirmSaved(ctx context.Context, sess *session.Session, userID int64, w *session.Wait) {
	if w.OnSaved == "" {
		return
	}
	c.deliver(ctx, sess, userID, Message{Text: c.renderText(ctx, userID, w.OnSaved), ForceNew: true}, w.NodeID)
}

func (c *Controller) clearAnswered(sess *session.Session, conditional bool) {
	if conditional {
		sess.CondWait = nil
		sess.CondShown = false
		return
	}
	sess.ClearWaits()
}

// advance walks the graph from id until a node pauses for input, the chain
// runs out of next links, or the hop budget is spent.
func (c *Controller) advance(ctx context.Context, sess *session.Session, userID int64, id string, edit bool) (Outcome, error) {
	hops := 0
	cur := id
	last := id
	for cur != "" {
		if hops >= c.maxHops {
			sess.ClearWaits()
			return Outcome{Status: statusForHops(hops), NodeID: last, Hops: hops}, &HopLimitError{StartNode: id, Limit: c.maxHops}
		}
		node, ok := c.graph.Node(cur)
		if !ok {
			sess.ClearWaits()
			c.metrics.unknownNode()
			logger.Error(ctx, "flow", "node.unknown",
				slog.String("node_id", cur),
				slog.Int64("user_id", userID),
			)
			return Outcome{Status: statusForHops(hops), NodeID: last, Hops: hops}, &UnknownNodeError{NodeID: cur}
		}
		last = cur

		st := c.evaluate(ctx, userID, node)

		// waits are installed before anything leaves the process
		if st.wait != nil {
			sess.Wait = st.wait
		}
		if st.condWait != nil {
			sess.CondWait = st.condWait
			sess.CondShown = true
		}

		if st.render != nil {
			msg := *st.render
			if hops > 0 {
				msg.ForceNew = true
			} else if edit && sess.LastMessageID != 0 {
				msg.EditMessageID = sess.LastMessageID
			}
			c.deliver(ctx, sess, userID, msg, node.ID)
		}

		if st.wait != nil || st.condWait != nil {
			return Outcome{Status: statusForHops(hops), NodeID: cur, Hops: hops}, nil
		}
		cur = st.next
		hops++
	}
	return Outcome{Status: statusForHops(hops), NodeID: last, Hops: hops}, nil
}

// deliver pushes one message out. A failed send is logged and absorbed;
// session and variable state committed before the send stays authoritative.
func (c *Controller) deliver(ctx context.Context, sess *session.Session, userID int64, msg Message, nodeID string) {
	id, err := c.delivery.Deliver(ctx, userID, msg)
	if err != nil {
		logger.Warn(ctx, "flow", "delivery.failed",
			slog.String("node_id", nodeID),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return
	}
	sess.LastMessageID = id
	c.observe(Record{
		TurnID:    logger.TurnIDFrom(ctx),
		UserID:    userID,
		Direction: DirectionOut,
		NodeID:    nodeID,
		Text:      msg.Text,
	})
}

func (c *Controller) observeInbound(ctx context.Context, sess *session.Session, ev Event) {
	text := ev.Text
	if ev.Kind == graph.InputPhoto {
		text = ev.PhotoID
	}
	nodeID := ""
	if sess.CondWait != nil {
		nodeID = sess.CondWait.NodeID
	} else if sess.Wait != nil {
		nodeID = sess.Wait.NodeID
	}
	c.observe(Record{
		TurnID:    logger.TurnIDFrom(ctx),
		UserID:    ev.UserID,
		Direction: DirectionIn,
		NodeID:    nodeID,
		Text:      text,
	})
}

func (c *Controller) logTurn(ctx context.Context, userID int64, event string, out Outcome, err error) {
	attrs := []slog.Attr{
		slog.Int64("user_id", userID),
		slog.String("node_id", out.NodeID),
		slog.String("outcome", out.Status),
		slog.Int("hops", out.Hops),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.String("err_code", errorCode(err)),
		)
		logger.Error(ctx, "flow", event, attrs...)
		return
	}
	logger.Info(ctx, "flow", event, attrs...)
}

// matchButton finds the wait button a press refers to. Inline callbacks
// carry the target node id; reply-keyboard presses arrive as plain text and
// match by label.
func matchButton(buttons []graph.Button, ev Event) (graph.Button, bool) {
	for _, b := range buttons {
		if ev.Target != "" && b.Target == ev.Target {
			return b, true
		}
		if ev.Target == "" && ev.Text != "" && strings.EqualFold(b.Label, ev.Text) {
			return b, true
		}
	}
	return graph.Button{}, false
}

func statusForHops(hops int) string {
	if hops > 0 {
		return StatusAdvanced
	}
	return StatusPaused
}

func defaultRetryText(kind validate.Kind) string {
	switch kind {
	case validate.KindEmail:
		return "That does not look like an email address. Try again."
	case validate.KindPhone:
		return "That does not look like a phone number. Try again."
	case validate.KindNumber:
		return "Please answer with a number."
	case validate.KindDate:
		return "Please answer with a date, for example 31.12.1999."
	default:
		return "That answer does not fit. Try again."
	}
}

func errorCode(err error) string {
	type coder interface{ Code() string }
	if c, ok := err.(coder); ok {
		return c.Code()
	}
	return "INTERNAL"
}

func newTurnID() string {
	return ulid.Make().String()
}
