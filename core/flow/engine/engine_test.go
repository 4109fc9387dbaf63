package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/flowbot/core/flow/graph"
	"github.com/m3rciful/flowbot/core/flow/session"
	"github.com/m3rciful/flowbot/core/flow/vars"
)

type fakeDelivery struct {
	sent   []Message
	nextID int
	fail   bool
}

func (f *fakeDelivery) Deliver(_ context.Context, _ int64, msg Message) (int, error) {
	if f.fail {
		return 0, errors.New("telegram unreachable")
	}
	f.sent = append(f.sent, msg)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeDelivery) last(t *testing.T) Message {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type capturingObserver struct {
	records []Record
}

func (o *capturingObserver) Observe(rec Record) {
	o.records = append(o.records, rec)
}

func onboardingGraph() *graph.Graph {
	return graph.New("welcome", map[string]graph.Node{
		"welcome": {
			Kind: graph.KindMessage,
			Text: "Hello!",
			Next: "ask_age",
		},
		"ask_age": {
			Kind: graph.KindCollect,
			Text: "How old are you?",
			Input: &graph.InputSpec{
				Variable: "age",
				Validate: "number",
				Retry:    "Numbers only, please.",
			},
			Condition: &graph.Condition{
				Variable: "age",
				Next:     "ask_city",
			},
			Next: "ask_city",
		},
		"ask_city": {
			Kind: graph.KindCollect,
			Text: "You are {age}. Which city?",
			Input: &graph.InputSpec{
				Variable: "city",
				MinLen:   2,
				OnSaved:  "Saved {city}.",
			},
			Condition: &graph.Condition{
				Variable:     "city",
				Text:         "Still living in {city}?",
				WaitForInput: true,
				Next:         "route",
				Keyboard: []graph.Button{
					{Label: "Yes", Target: "route"},
					{Label: "Change", Skip: true, Target: "ask_city_again"},
				},
			},
			Next: "route",
		},
		"ask_city_again": {
			Kind:  graph.KindCollect,
			Text:  "Which city then?",
			Input: &graph.InputSpec{Variable: "city", MinLen: 2},
			Next:  "route",
		},
		"route": {
			Kind: graph.KindBranch,
			Condition: &graph.Condition{
				Variable: "age",
				Next:     "hop_a",
			},
			Next: "done",
		},
		"hop_a": {
			Kind: graph.KindPassthrough,
			Next: "hop_b",
		},
		"hop_b": {
			Kind: graph.KindMessage,
			Text: "Almost there.",
			Next: "done",
		},
		"done": {
			Kind: graph.KindMessage,
			Text: "Bye, {city}!",
		},
	})
}

type fixture struct {
	ctl      *Controller
	delivery *fakeDelivery
	store    vars.Store
	sessions *session.Store
	observer *capturingObserver
}

func newFixture(t *testing.T, g *graph.Graph, opts Options) *fixture {
	t.Helper()
	require.NoError(t, g.Validate())
	f := &fixture{
		delivery: &fakeDelivery{},
		store:    vars.NewMemory(),
		sessions: session.NewStore(),
		observer: &capturingObserver{},
	}
	if opts.Observer == nil {
		opts.Observer = f.observer
	}
	f.ctl = New(g, f.sessions, f.store, f.delivery, opts)
	return f
}

const userID = int64(100)

func TestStartAdvancesToFirstWait(t *testing.T) {
	f := newFixture(t, onboardingGraph(), Options{})
	out, err := f.ctl.Start(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, StatusAdvanced, out.Status)
	assert.Equal(t, "ask_age", out.NodeID)
	require.Len(t, f.delivery.sent, 2)
	assert.Equal(t, "Hello!", f.delivery.sent[0].Text)
	assert.Equal(t, "How old are you?", f.delivery.sent[1].Text)

	sess := f.sessions.Peek(userID)
	require.NotNil(t, sess.Wait)
	assert.Equal(t, "age", sess.Wait.Variable)
}

func TestValidationFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	before := f.sessions.Peek(userID)
	out, err := f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputText, Text: "abc"})
	require.NoError(t, err)

	assert.Equal(t, StatusPaused, out.Status)
	assert.Equal(t, "ask_age", out.NodeID)
	assert.Equal(t, "Numbers only, please.", f.delivery.last(t).Text)

	after := f.sessions.Peek(userID)
	require.NotNil(t, after.Wait)
	assert.Equal(t, before.Wait.NodeID, after.Wait.NodeID)

	has, err := f.store.HasValue(ctx, userID, "age")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestValidInputPersistsAndRendersPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	out, err := f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputText, Text: "23"})
	require.NoError(t, err)

	assert.Equal(t, StatusPaused, out.Status)
	assert.Equal(t, "ask_city", out.NodeID)
	assert.Equal(t, "You are 23. Which city?", f.delivery.last(t).Text)

	v, ok, err := f.store.Get(ctx, userID, "age")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "23", v)
}

func TestConditionalOverrideInstallsCondWait(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	require.NoError(t, f.store.Set(ctx, userID, "age", "23"))
	require.NoError(t, f.store.Set(ctx, userID, "city", "Oslo"))

	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	// ask_city sees city already set and shows the confirmation instead
	msg := f.delivery.last(t)
	assert.Equal(t, "Still living in Oslo?", msg.Text)
	require.Len(t, msg.Keyboard, 2)

	sess := f.sessions.Peek(userID)
	require.NotNil(t, sess.CondWait)
	assert.True(t, sess.CondShown)
	assert.Equal(t, "route", sess.CondWait.Next)
}

func TestButtonLabelPlaceholdersRendered(t *testing.T) {
	ctx := context.Background()
	g := graph.New("confirm_city", map[string]graph.Node{
		"confirm_city": {
			Kind:  graph.KindCollect,
			Text:  "Which city?",
			Input: &graph.InputSpec{Variable: "city"},
			Condition: &graph.Condition{
				Variable:     "city",
				Text:         "Keep your city?",
				WaitForInput: true,
				Next:         "done",
				Keyboard: []graph.Button{
					{Label: "{city}", Target: "done"},
					{Label: "Somewhere else", Skip: true, Target: "confirm_city"},
				},
			},
			Next: "done",
		},
		"done": {Kind: graph.KindMessage, Text: "All set."},
	})
	f := newFixture(t, g, Options{})
	require.NoError(t, f.store.Set(ctx, userID, "city", "Oslo"))

	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	// the delivered keyboard carries the stored value, not the placeholder
	msg := f.delivery.last(t)
	require.Len(t, msg.Keyboard, 2)
	assert.Equal(t, "Oslo", msg.Keyboard[0][0].Label)
	assert.Equal(t, "Somewhere else", msg.Keyboard[1][0].Label)

	// the installed wait holds the same rendered labels
	sess := f.sessions.Peek(userID)
	require.NotNil(t, sess.CondWait)
	require.NotEmpty(t, sess.CondWait.Buttons)
	assert.Equal(t, "Oslo", sess.CondWait.Buttons[0].Label)

	// a reply-keyboard press arrives as the rendered text and still matches
	out, err := f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputText, Text: "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, StatusAdvanced, out.Status)
	assert.Equal(t, "done", out.NodeID)
	assert.Equal(t, "All set.", f.delivery.last(t).Text)
}

func TestConditionalConfirmRoutesThroughBranch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	require.NoError(t, f.store.Set(ctx, userID, "age", "23"))
	require.NoError(t, f.store.Set(ctx, userID, "city", "Oslo"))
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	// "Yes" jumps to route; branch sees age set, passes hop_a into hop_b
	out, err := f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputButton, Target: "route"})
	require.NoError(t, err)

	assert.Equal(t, StatusAdvanced, out.Status)
	assert.Equal(t, "done", out.NodeID)
	assert.GreaterOrEqual(t, out.Hops, 3)
	texts := []string{}
	for _, m := range f.delivery.sent {
		texts = append(texts, m.Text)
	}
	assert.Contains(t, texts, "Almost there.")
	assert.Contains(t, texts, "Bye, Oslo!")
	assert.True(t, f.sessions.Peek(userID).Idle())
}

func TestSkipButtonWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	require.NoError(t, f.store.Set(ctx, userID, "age", "23"))
	require.NoError(t, f.store.Set(ctx, userID, "city", "Oslo"))
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	out, err := f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputButton, Target: "ask_city_again"})
	require.NoError(t, err)
	assert.Equal(t, "ask_city_again", out.NodeID)

	// the press navigated without touching the stored value
	v, ok, err := f.store.Get(ctx, userID, "city")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Oslo", v)

	sess := f.sessions.Peek(userID)
	require.NotNil(t, sess.Wait)
	assert.Equal(t, "ask_city_again", sess.Wait.NodeID)
	assert.Nil(t, sess.CondWait)
}

func TestOnSavedConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	require.NoError(t, f.store.Set(ctx, userID, "age", "23"))
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	_, err = f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputText, Text: "Bergen"})
	require.NoError(t, err)

	texts := []string{}
	for _, m := range f.delivery.sent {
		texts = append(texts, m.Text)
	}
	assert.Contains(t, texts, "Saved Bergen.")
}

func TestModeMismatchIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	sent := len(f.delivery.sent)
	out, err := f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputPhoto, PhotoID: "file123"})
	require.NoError(t, err)

	assert.Equal(t, StatusIgnored, out.Status)
	assert.Len(t, f.delivery.sent, sent, "nothing new went out")
	require.NotNil(t, f.sessions.Peek(userID).Wait)
}

func TestIdleTextIsIgnored(t *testing.T) {
	f := newFixture(t, onboardingGraph(), Options{})
	out, err := f.ctl.Handle(context.Background(), Event{UserID: userID, Kind: graph.InputText, Text: "hello?"})
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, out.Status)
	assert.Empty(t, f.delivery.sent)
}

func TestUnknownNodeClearsWaits(t *testing.T) {
	g := graph.New("a", map[string]graph.Node{
		"a": {Kind: graph.KindCollect, Text: "?", Input: &graph.InputSpec{Variable: "v"}, Next: "b"},
		"b": {Kind: graph.KindMessage, Text: "ok"},
	})
	f := newFixture(t, g, Options{})
	ctx := context.Background()
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	// simulate a stale callback into a node the graph no longer has
	out, err := f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputButton, Target: "gone"})
	require.NoError(t, err, "stale presses do not match the wait")
	assert.Equal(t, StatusIgnored, out.Status)

	// an idle jump to a missing node is the real failure path
	f.sessions.Reset(userID)
	_, err = f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputButton, Target: "gone"})
	var unknown *UnknownNodeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "gone", unknown.NodeID)
	assert.True(t, f.sessions.Peek(userID).Idle())
}

func TestHopLimit(t *testing.T) {
	// two message nodes bouncing between each other never pause
	g := graph.New("a", map[string]graph.Node{
		"a": {Kind: graph.KindMessage, Text: "ping", Next: "b"},
		"b": {Kind: graph.KindMessage, Text: "pong", Next: "a"},
	})
	f := newFixture(t, g, Options{MaxHops: 5})
	_, err := f.ctl.Start(context.Background(), userID)

	var limit *HopLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 5, limit.Limit)
	assert.True(t, f.sessions.Peek(userID).Idle())
}

func TestDeliveryFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	f.delivery.fail = true

	out, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err, "send failures are absorbed")
	assert.Equal(t, "ask_age", out.NodeID)

	// the wait was installed even though nothing reached the user
	require.NotNil(t, f.sessions.Peek(userID).Wait)

	f.delivery.fail = false
	_, err = f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputText, Text: "23"})
	require.NoError(t, err)
	v, ok, err := f.store.Get(ctx, userID, "age")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "23", v)
}

func TestAutoAdvanceChainSendsFreshMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	require.Len(t, f.delivery.sent, 2)
	assert.False(t, f.delivery.sent[0].ForceNew)
	assert.True(t, f.delivery.sent[1].ForceNew, "second hop must not overwrite the first")
}

func TestObserverSeesBothDirections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)
	_, err = f.ctl.Handle(ctx, Event{UserID: userID, Kind: graph.InputText, Text: "23"})
	require.NoError(t, err)

	var in, out int
	for _, r := range f.observer.records {
		switch r.Direction {
		case DirectionIn:
			in++
		case DirectionOut:
			out++
		}
	}
	assert.GreaterOrEqual(t, in, 1)
	assert.GreaterOrEqual(t, out, 3)
}

func TestResetClearsSessionAndVariables(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onboardingGraph(), Options{})
	require.NoError(t, f.store.Set(ctx, userID, "age", "23"))
	_, err := f.ctl.Start(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, f.ctl.Reset(ctx, userID, true))
	assert.True(t, f.sessions.Peek(userID).Idle())
	has, err := f.store.HasValue(ctx, userID, "age")
	require.NoError(t, err)
	assert.False(t, has)
}
