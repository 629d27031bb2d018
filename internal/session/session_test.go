package session_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adragomir/pi.nvim/internal/promise"
	"github.com/adragomir/pi.nvim/internal/rpc"
	"github.com/adragomir/pi.nvim/internal/session"
	"github.com/adragomir/pi.nvim/internal/session/sessiontest"
	"github.com/adragomir/pi.nvim/internal/wire"
)

// fakeTransport is an in-memory Transport: commands are recorded and resolve
// immediately, events are pushed through the subscription callback.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	handler   rpc.EventHandler
	history   []wire.Message
	prompts   []string
	steers    []string
}

func (f *fakeTransport) Connect(host string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) OnEvent(fn rpc.EventHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handler = nil
	}
}

func (f *fakeTransport) Prompt(message string, images ...wire.ImageAttachment) *promise.Promise[json.RawMessage] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, message)
	return promise.Resolved[json.RawMessage](nil)
}

func (f *fakeTransport) Steer(message string) *promise.Promise[json.RawMessage] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steers = append(f.steers, message)
	return promise.Resolved[json.RawMessage](nil)
}

func (f *fakeTransport) GetMessages() *promise.Promise[[]wire.Message] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return promise.Resolved(f.history)
}

func (f *fakeTransport) emit(t *testing.T, evt wire.Event) {
	t.Helper()
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	require.NotNil(t, handler, "no event subscriber installed")
	handler(evt)
}

func (f *fakeTransport) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func newTestSession(t *testing.T, transport *fakeTransport, opts ...session.Option) *session.Session {
	t.Helper()
	opts = append([]session.Option{
		session.WithTransport(transport),
		session.WithRenderInterval(time.Millisecond),
		session.WithLivenessInterval(5*time.Millisecond, time.Millisecond),
		session.WithHistoryFetch(false),
	}, opts...)
	s := session.New(opts...)
	require.NoError(t, s.Connect("127.0.0.1", 9999))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func assistantUpdate(kind, text, thinking string, msg *wire.Message) *wire.MessageUpdateEvent {
	return &wire.MessageUpdateEvent{AssistantEvent: wire.AssistantMessageEvent{
		Type: kind, Text: text, Thinking: thinking, Message: msg,
	}}
}

func TestPromptTurnFlow(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport)

	fut := s.Send("hi")
	_, err := fut.Await()
	require.NoError(t, err)
	require.Equal(t, []string{"hi"}, transport.prompts)
	require.Empty(t, transport.steers)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, wire.RoleUser, msgs[0].Role)
	require.Equal(t, "hi", msgs[0].Text())
	require.NotEmpty(t, msgs[0].LocalID)

	transport.emit(t, &wire.AgentStartEvent{})
	require.True(t, s.TurnActive())

	transport.emit(t, &wire.MessageStartEvent{})
	transport.emit(t, assistantUpdate(wire.AssistantTextDelta, "He", "", nil))
	transport.emit(t, assistantUpdate(wire.AssistantTextDelta, "llo", "", nil))
	require.Equal(t, "Hello", s.StreamingText())

	final := wire.Message{
		Role:    wire.RoleAssistant,
		Content: []wire.ContentBlock{{Type: wire.BlockText, Text: "Hello"}},
	}
	transport.emit(t, assistantUpdate(wire.AssistantDone, "", "", &final))
	require.Empty(t, s.StreamingText())

	authoritative := []wire.Message{
		wire.NewUserTextMessage("hi", "", 0),
		final,
	}
	transport.emit(t, &wire.AgentEndEvent{Messages: authoritative})

	require.False(t, s.TurnActive())
	msgs = s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "hi", msgs[0].Text())
	require.Equal(t, "Hello", msgs[1].Text())
	require.Empty(t, s.StreamingText())
	require.Empty(t, s.StreamingThinking())
}

func TestSendSteersWhileTurnActive(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport)

	transport.emit(t, &wire.AgentStartEvent{})
	_, err := s.Send("stop that").Await()
	require.NoError(t, err)
	require.Equal(t, []string{"stop that"}, transport.steers)
	require.Empty(t, transport.prompts)
}

func TestToolExecutionLifecycle(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport)

	transport.emit(t, &wire.AgentStartEvent{})
	transport.emit(t, &wire.ToolExecutionStartEvent{
		ToolCallID: "c1", ToolName: "bash", Args: json.RawMessage(`{"command":"ls"}`),
	})

	tools := s.ToolExecutions()
	require.Len(t, tools, 1)
	require.Equal(t, session.ToolRunning, tools[0].Status)
	require.Equal(t, "bash", tools[0].Name)

	// Update for an unknown call id is a no-op.
	transport.emit(t, &wire.ToolExecutionUpdateEvent{ToolCallID: "zz", PartialResult: json.RawMessage(`"x"`)})
	require.Len(t, s.ToolExecutions(), 1)

	transport.emit(t, &wire.ToolExecutionUpdateEvent{ToolCallID: "c1", PartialResult: json.RawMessage(`"file"`)})
	tools = s.ToolExecutions()
	require.JSONEq(t, `"file"`, string(tools[0].PartialResult))

	transport.emit(t, &wire.ToolExecutionEndEvent{ToolCallID: "c1", Result: json.RawMessage(`"files"`), IsError: false})
	tools = s.ToolExecutions()
	require.Equal(t, session.ToolDone, tools[0].Status)
	require.False(t, tools[0].IsError)

	transport.emit(t, &wire.AgentEndEvent{})
	require.Empty(t, s.ToolExecutions())
}

func TestToolExecutionsKeepStartOrder(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport)

	for _, id := range []string{"c1", "c2", "c3"} {
		transport.emit(t, &wire.ToolExecutionStartEvent{ToolCallID: id, ToolName: "bash"})
	}
	tools := s.ToolExecutions()
	require.Len(t, tools, 3)
	require.Equal(t, "c1", tools[0].CallID)
	require.Equal(t, "c2", tools[1].CallID)
	require.Equal(t, "c3", tools[2].CallID)
}

func TestTextEndIsAuthoritativeAndIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport)

	transport.emit(t, &wire.MessageStartEvent{})
	transport.emit(t, assistantUpdate(wire.AssistantTextDelta, "Hel", "", nil))
	// Dropped deltas do not matter: text_end carries the full text.
	transport.emit(t, assistantUpdate(wire.AssistantTextEnd, "Hello, world", "", nil))
	require.Equal(t, "Hello, world", s.StreamingText())

	transport.emit(t, assistantUpdate(wire.AssistantTextEnd, "Hello, world", "", nil))
	require.Equal(t, "Hello, world", s.StreamingText())

	transport.emit(t, assistantUpdate(wire.AssistantThinkingDelta, "", "let me ", nil))
	transport.emit(t, assistantUpdate(wire.AssistantThinkingEnd, "", "let me see", nil))
	require.Equal(t, "let me see", s.StreamingThinking())
}

func TestRenderBurstIsCoalesced(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, session.WithRenderInterval(40*time.Millisecond))

	var mu sync.Mutex
	renders := 0
	var lastText string
	s.OnRender(func() {
		mu.Lock()
		renders++
		lastText = s.StreamingText()
		mu.Unlock()
	})

	transport.emit(t, &wire.MessageStartEvent{})
	const deltas = 20
	for i := 0; i < deltas; i++ {
		transport.emit(t, assistantUpdate(wire.AssistantTextDelta, "x", "", nil))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lastText) == deltas
	}, 2*time.Second, 5*time.Millisecond, "trailing render must carry the full text")

	mu.Lock()
	defer mu.Unlock()
	require.Less(t, renders, deltas)
}

func TestLivenessPollDetectsDisconnectOnce(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport)

	var mu sync.Mutex
	disconnectRenders := 0
	s.OnRender(func() {
		if s.State() == session.StateDisconnected {
			mu.Lock()
			disconnectRenders++
			mu.Unlock()
		}
	})

	transport.emit(t, &wire.AgentStartEvent{})
	transport.emit(t, assistantUpdate(wire.AssistantTextDelta, "partial", "", nil))

	// Let any deferred render drain before the connection drops.
	time.Sleep(20 * time.Millisecond)
	transport.disconnect()
	require.Eventually(t, func() bool {
		return s.State() == session.StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	require.False(t, s.TurnActive())
	require.Empty(t, s.StreamingText())

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, disconnectRenders)
}

func TestHistoryFetchOnConnect(t *testing.T) {
	transport := &fakeTransport{
		history: []wire.Message{wire.NewUserTextMessage("earlier", "", 0)},
	}
	s := session.New(
		session.WithTransport(transport),
		session.WithRenderInterval(time.Millisecond),
		session.WithLivenessInterval(time.Hour, time.Hour),
		session.WithHistoryFetch(true),
	)
	require.NoError(t, s.Connect("", 0))
	t.Cleanup(func() { _ = s.Close() })

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Text() == "earlier"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSendUsesClockForTimestamps(t *testing.T) {
	clock := sessiontest.NewFakeClock(time.UnixMilli(1_700_000_000_000))
	transport := &fakeTransport{}
	s := newTestSession(t, transport, session.WithClock(clock))

	s.Send("first")
	clock.Advance(1500 * time.Millisecond)
	s.Send("second")

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, int64(1_700_000_000_000), msgs[0].CreatedAt)
	require.Equal(t, int64(1_700_000_001_500), msgs[1].CreatedAt)
}

func TestCloseIsIdempotentAndClearsState(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport)

	transport.emit(t, &wire.AgentStartEvent{})
	s.Send("hi")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, session.StateDisconnected, s.State())
	require.Empty(t, s.Messages())
	require.Empty(t, s.ToolExecutions())
	require.False(t, transport.IsConnected())

	require.Error(t, s.Connect("", 0))
}

func TestIgnoresEchoEvents(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport)

	transport.emit(t, wire.GenericEvent{Type: "tool_call", Raw: json.RawMessage(`{"type":"tool_call"}`)})
	transport.emit(t, wire.GenericEvent{Type: "tool_result", Raw: json.RawMessage(`{"type":"tool_result"}`)})

	require.Empty(t, s.Messages())
	require.Empty(t, s.ToolExecutions())
	require.False(t, s.TurnActive())
}
