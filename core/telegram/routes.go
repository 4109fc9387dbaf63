package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow/engine"
	"github.com/m3rciful/flowbot/core/flow/graph"
	"github.com/m3rciful/flowbot/core/flow/session"
	"github.com/m3rciful/flowbot/core/history"
	"github.com/m3rciful/flowbot/core/logger"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
	"github.com/m3rciful/flowbot/core/telegram/keyboard"
	tgmw "github.com/m3rciful/flowbot/core/telegram/middleware"
)

// Handlers bundles everything the update handlers need.
type Handlers struct {
	Controller *engine.Controller
	Sessions   *session.Store
	Recorder   *history.Recorder

	AdminID              int64
	ResetClearsVariables bool
}

const userFacingError = "Something went sideways. Send /start to begin again."

// Route binds one telebot endpoint to its handler.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// routes assembles every bot endpoint.
func (h *Handlers) routes() []Route {
	return []Route{
		{Endpoint: "/start", Handler: h.onStart},
		{Endpoint: "/reset", Handler: h.onReset},
		{Endpoint: "/help", Handler: h.onHelp},
		{Endpoint: "/stats", Handler: tgmw.AdminOnly(tgmw.AdminOptions{AdminID: h.AdminID}, h.onStats)},
		{Endpoint: tele.OnText, Handler: h.onText},
		{Endpoint: tele.OnPhoto, Handler: h.onPhoto},
		{Endpoint: &tele.Btn{Unique: keyboard.FlowUnique}, Handler: h.onFlowCallback},
	}
}

// menuCommands is what the Telegram command menu shows.
func menuCommands() []tele.Command {
	return []tele.Command{
		{Text: "/start", Description: "Begin the conversation"},
		{Text: "/reset", Description: "Start over from scratch"},
		{Text: "/help", Description: "What this bot does"},
	}
}

func (h *Handlers) onStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "cmd.start")
	start := time.Now()
	out, err := h.Controller.Start(ctx, c.Sender().ID)
	h.summarize(ctx, "cmd.start", out, err, start)
	if err != nil {
		return c.Send(userFacingError)
	}
	return nil
}

func (h *Handlers) onReset(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "cmd.reset")
	userID := c.Sender().ID
	if err := h.Controller.Reset(ctx, userID, h.ResetClearsVariables); err != nil {
		logger.Error(ctx, "tg", "cmd.reset",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return c.Send(userFacingError)
	}
	start := time.Now()
	out, err := h.Controller.Start(ctx, userID)
	h.summarize(ctx, "cmd.reset", out, err, start)
	if err != nil {
		return c.Send(userFacingError)
	}
	return nil
}

func (h *Handlers) onHelp(c tele.Context) error {
	_ = tghelpers.WithHandler(c, "cmd.help")
	return c.Send(strings.Join([]string{
		"I walk you through a scripted conversation, step by step.",
		"",
		"/start - begin or continue",
		"/reset - forget everything and start over",
	}, "\n"))
}

func (h *Handlers) onStats(c tele.Context) error {
	_ = tghelpers.WithHandler(c, "cmd.stats")
	var dropped int64
	if h.Recorder != nil {
		dropped = h.Recorder.Dropped()
	}
	return c.Send(fmt.Sprintf(
		"sessions: %d\nwaiting: %d\nhistory dropped: %d",
		h.Sessions.Count(), h.Sessions.Waiting(), dropped,
	))
}

func (h *Handlers) onText(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "flow.text")
	start := time.Now()
	out, err := h.Controller.Handle(ctx, engine.Event{
		UserID: c.Sender().ID,
		Kind:   graph.InputText,
		Text:   c.Text(),
	})
	h.summarize(ctx, "flow.text", out, err, start)
	if err != nil {
		return c.Send(userFacingError)
	}
	return nil
}

func (h *Handlers) onPhoto(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "flow.photo")
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		return nil
	}
	start := time.Now()
	out, err := h.Controller.Handle(ctx, engine.Event{
		UserID:  c.Sender().ID,
		Kind:    graph.InputPhoto,
		PhotoID: msg.Photo.FileID,
	})
	h.summarize(ctx, "flow.photo", out, err, start)
	if err != nil {
		return c.Send(userFacingError)
	}
	return nil
}

func (h *Handlers) onFlowCallback(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "flow.callback")
	// dismiss the loading spinner regardless of what the press does
	defer func() { _ = c.Respond(&tele.CallbackResponse{}) }()

	target, label := splitCallbackData(c.Data())
	start := time.Now()
	out, err := h.Controller.Handle(ctx, engine.Event{
		UserID: c.Sender().ID,
		Kind:   graph.InputButton,
		Target: target,
		Text:   label,
	})
	h.summarize(ctx, "flow.callback", out, err, start)
	if err != nil {
		return c.Send(userFacingError)
	}
	return nil
}

// splitCallbackData unpacks "target|label" callback payloads.
func splitCallbackData(data string) (target, label string) {
	parts := strings.SplitN(data, "|", 2)
	target = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		label = parts[1]
	}
	return target, label
}

func (h *Handlers) summarize(ctx context.Context, handler string, out engine.Outcome, err error, start time.Time) {
	attrs := []slog.Attr{
		slog.String("handler", handler),
		slog.String("node_id", out.NodeID),
		slog.String("outcome", out.Status),
		slog.Int("hops", out.Hops),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		logger.Error(ctx, "tg", "update.handled", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "ok"))
	logger.Info(ctx, "tg", "update.handled", attrs...)
}
