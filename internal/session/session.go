// Package session turns the agent's event stream into a renderable
// conversation: an append-only message log, streaming text/thinking
// accumulators, and the set of in-flight tool executions.
//
// A Session owns exactly one transport and never shares it. Renderers observe
// state through read-only accessors and are notified through the OnRender
// hook; they must not mutate session state.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adragomir/pi.nvim/internal/promise"
	"github.com/adragomir/pi.nvim/internal/rpc"
	"github.com/adragomir/pi.nvim/internal/wire"
	"github.com/adragomir/pi.nvim/pkg/logger"
)

const (
	// DefaultLivenessInterval is how often the connection is polled.
	DefaultLivenessInterval = 2 * time.Second
	// DefaultLivenessDelay is how long after connect polling starts.
	DefaultLivenessDelay = time.Second
	// DefaultRenderInterval is the minimum spacing between renders.
	DefaultRenderInterval = 50 * time.Millisecond
)

// State is the session lifecycle state.
type State int

const (
	// StateIdle is a session that has not connected yet.
	StateIdle State = iota
	// StateConnecting is a session with a dial in flight.
	StateConnecting
	// StateActive is a session with a live connection.
	StateActive
	// StateDisconnected is terminal; a new Session is needed to reconnect.
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tool execution statuses.
const (
	ToolRunning = "running"
	ToolDone    = "done"
)

// ToolExecution is the session's record of one tool call's lifecycle.
type ToolExecution struct {
	CallID        string
	Name          string
	Args          json.RawMessage
	PartialResult json.RawMessage
	Result        json.RawMessage
	IsError       bool
	Status        string
}

// Transport is the slice of the rpc client a Session drives. *rpc.Client
// implements it.
type Transport interface {
	Connect(host string, port int) error
	IsConnected() bool
	Close() error
	OnEvent(fn rpc.EventHandler) func()
	Prompt(message string, images ...wire.ImageAttachment) *promise.Promise[json.RawMessage]
	Steer(message string) *promise.Promise[json.RawMessage]
	GetMessages() *promise.Promise[[]wire.Message]
}

var _ Transport = (*rpc.Client)(nil)

// streamingAssembly accumulates one assistant message as deltas arrive.
type streamingAssembly struct {
	active   bool
	text     string
	thinking string
}

// Session is the conversation state machine over one agent connection.
type Session struct {
	clock            Clock
	livenessInterval time.Duration
	livenessDelay    time.Duration
	renderInterval   time.Duration
	fetchHistory     bool

	throttle *renderThrottle

	mu          sync.Mutex
	state       State
	transport   Transport
	unsubscribe func()
	stopPoll    chan struct{}
	messages    []wire.Message
	streaming   streamingAssembly
	tools       map[string]*ToolExecution
	toolOrder   []string
	turnActive  bool
	render      func()
}

// Option configures a Session.
type Option func(*Session)

// WithTransport overrides the transport; by default a new rpc.Client is used.
func WithTransport(t Transport) Option {
	return func(s *Session) { s.transport = t }
}

// WithClock overrides the time source used for local message timestamps.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLivenessInterval overrides the poll interval and initial delay.
func WithLivenessInterval(interval, delay time.Duration) Option {
	return func(s *Session) {
		if interval > 0 {
			s.livenessInterval = interval
		}
		if delay > 0 {
			s.livenessDelay = delay
		}
	}
}

// WithRenderInterval overrides the render throttle spacing.
func WithRenderInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.renderInterval = d
		}
	}
}

// WithHistoryFetch controls whether Connect pulls the existing message log.
func WithHistoryFetch(enabled bool) Option {
	return func(s *Session) { s.fetchHistory = enabled }
}

// New creates an idle session.
func New(opts ...Option) *Session {
	s := &Session{
		clock:            RealClock{},
		livenessInterval: DefaultLivenessInterval,
		livenessDelay:    DefaultLivenessDelay,
		renderInterval:   DefaultRenderInterval,
		fetchHistory:     true,
		tools:            make(map[string]*ToolExecution),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = rpc.New()
	}
	s.throttle = newRenderThrottle(s.renderInterval, s.notifyRender)
	return s
}

// Connect dials the agent, subscribes to its event stream, optionally fetches
// the existing message log, and starts the liveness poll.
func (s *Session) Connect(host string, port int) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("connect: session is %s", state)
	}
	s.state = StateConnecting
	transport := s.transport
	s.mu.Unlock()

	if err := transport.Connect(host, port); err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}

	unsubscribe := transport.OnEvent(s.handleEvent)
	stop := make(chan struct{})

	s.mu.Lock()
	s.state = StateActive
	s.unsubscribe = unsubscribe
	s.stopPoll = stop
	s.mu.Unlock()

	if s.fetchHistory {
		transport.GetMessages().OnSettle(func(msgs []wire.Message, err error) {
			if err != nil {
				logger.Warnf("[session] history fetch failed: %v", err)
				return
			}
			s.mu.Lock()
			if s.state == StateActive && len(s.messages) == 0 {
				s.messages = msgs
			}
			s.mu.Unlock()
			s.throttle.Request()
		})
	}

	go s.livenessLoop(stop)
	logger.Infof("[session] connected to %s:%d", host, port)
	return nil
}

// Send appends an optimistic local-echo user message and dispatches it:
// steer while a turn is active, prompt otherwise. The returned promise is the
// command's delivery outcome.
func (s *Session) Send(text string) *promise.Promise[json.RawMessage] {
	echo := wire.NewUserTextMessage(text, uuid.NewString(), s.clock.Now().UnixMilli())

	s.mu.Lock()
	transport := s.transport
	if transport == nil {
		s.mu.Unlock()
		return promise.Rejected[json.RawMessage](rpc.ErrNotConnected)
	}
	s.messages = append(s.messages, echo)
	steering := s.turnActive
	s.mu.Unlock()

	s.throttle.Request()

	if steering {
		return transport.Steer(text)
	}
	return transport.Prompt(text)
}

// OnRender installs the renderer hook. The hook runs off the event path and
// reads state through the accessors.
func (s *Session) OnRender(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.render = fn
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TurnActive reports whether an agent turn is in flight.
func (s *Session) TurnActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnActive
}

// Messages returns a copy of the message log.
func (s *Session) Messages() []wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// StreamingText returns the in-flight assistant text accumulator.
func (s *Session) StreamingText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming.text
}

// StreamingThinking returns the in-flight assistant thinking accumulator.
func (s *Session) StreamingThinking() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming.thinking
}

// ToolExecutions returns the tracked tool executions in start order.
func (s *Session) ToolExecutions() []ToolExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolExecution, 0, len(s.toolOrder))
	for _, id := range s.toolOrder {
		if rec := s.tools[id]; rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

// Close stops the liveness poll and render throttle, unsubscribes,
// disconnects, and clears all state. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateDisconnected && s.transport == nil {
		s.mu.Unlock()
		return nil
	}
	transport := s.transport
	unsubscribe := s.unsubscribe
	stop := s.stopPoll
	s.state = StateDisconnected
	s.transport = nil
	s.unsubscribe = nil
	s.stopPoll = nil
	s.messages = nil
	s.resetScratchLocked()
	s.turnActive = false
	s.mu.Unlock()

	s.throttle.Stop()
	if stop != nil {
		close(stop)
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if transport != nil {
		_ = transport.Close()
	}
	return nil
}

// livenessLoop polls the transport until it reports dead or the session
// closes. A dead connection is surfaced exactly once.
func (s *Session) livenessLoop(stop chan struct{}) {
	select {
	case <-stop:
		return
	case <-time.After(s.livenessDelay):
	}

	ticker := time.NewTicker(s.livenessInterval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		transport := s.transport
		s.mu.Unlock()
		if transport == nil {
			return
		}
		if !transport.IsConnected() {
			s.handleDisconnect()
			return
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// handleDisconnect transitions to disconnected and notifies the renderer
// once. Scratch state is cleared; the message log is kept for display.
func (s *Session) handleDisconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.resetScratchLocked()
	s.turnActive = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	logger.Warnf("[session] connection lost")
	if unsubscribe != nil {
		unsubscribe()
	}
	s.throttle.Stop()
	// Bypass the throttle so the disconnect is visible immediately.
	s.notifyRender()
}

func (s *Session) resetScratchLocked() {
	s.streaming = streamingAssembly{}
	s.tools = make(map[string]*ToolExecution)
	s.toolOrder = nil
}

func (s *Session) notifyRender() {
	s.mu.Lock()
	render := s.render
	s.mu.Unlock()
	if render != nil {
		render()
	}
}
