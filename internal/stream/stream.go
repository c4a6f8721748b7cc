// Package stream drives the single active incremental-response session,
// reassembling blank-line separated JSON frames into store mutations.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"

	"tchat/internal/store"
)

// Event discriminates the frames of a streamed response.
type Event string

const (
	// EventStart opens an assistant message.
	EventStart Event = "start"
	// EventMessage appends a content delta to it.
	EventMessage Event = "message"
	// EventComplete delivers its completion metadata and ends the turn.
	EventComplete Event = "complete"
)

// Frame is one parsed unit of the streamed response.
type Frame struct {
	Event            Event       `json:"event"`
	MessageID        string      `json:"message_id"`
	Content          string      `json:"content"`
	CompletionTokens int         `json:"completion_tokens"`
	ResponseTime     json.Number `json:"response_time"`
}

// ParseFrame decodes a raw frame and rejects unknown event tags.
func ParseFrame(raw []byte) (*Frame, error) {
	frame := &Frame{}
	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, errors.Wrap(err, "parsing stream frame")
	}
	switch frame.Event {
	case EventStart, EventMessage, EventComplete:
		return frame, nil
	default:
		return nil, errors.Errorf("unknown stream event %q", frame.Event)
	}
}

var frameDelimiter = []byte("\n\n")

// splitFrames is a bufio.SplitFunc yielding one frame per blank-line
// delimiter. A single read may carry zero, one or many complete frames, and a
// frame may span multiple reads: unterminated trailing bytes are retained in
// the scanner's buffer until the delimiter arrives.
func splitFrames(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, frameDelimiter); i >= 0 {
		return i + len(frameDelimiter), data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Streamer opens the incremental-response byte sequence for a chat.
type Streamer interface {
	StreamChat(ctx context.Context, chatID string) (io.ReadCloser, error)
}

// Session is one streaming read-loop. Ephemeral: discarded on completion,
// error or cancellation.
type Session struct {
	chatID string
	cancel context.CancelFunc
	done   chan struct{}
}

// ChatID returns the chat this session streams into.
func (s *Session) ChatID() string { return s.chatID }

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Manager owns the at-most-one active stream session. Starting a new session
// always wins: the prior one is cancelled and its late-arriving frames are
// never applied.
type Manager struct {
	store    *store.Store
	streamer Streamer
	onError  func(error)

	mu      sync.Mutex
	current *Session
}

// NewManager instantiates a manager. onError receives stream failures worth
// surfacing to the user (cancellation is not one) and may be nil.
func NewManager(s *store.Store, streamer Streamer, onError func(error)) *Manager {
	return &Manager{store: s, streamer: streamer, onError: onError}
}

// Start opens a stream session for a chat, superseding any running session.
func (m *Manager) Start(chatID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	session := &Session{chatID: chatID, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if m.current != nil {
		m.current.cancel()
	}
	m.current = session
	m.mu.Unlock()

	m.store.SetStreaming(true)
	go m.run(ctx, session)
	return session
}

// Stop cancels the active session, if any. Never an error.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.cancel()
	}
}

// Active reports whether a session is currently running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

func (m *Manager) isCurrent(session *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == session
}

// finish tears a session down. The global indicators are cleared only when
// the session is still current: a superseding session owns them otherwise.
func (m *Manager) finish(session *Session) {
	m.mu.Lock()
	wasCurrent := m.current == session
	if wasCurrent {
		m.current = nil
	}
	m.mu.Unlock()

	if wasCurrent {
		m.store.SetStreaming(false)
		m.store.SetAwaitingFirstToken(false)
	}
	session.cancel()
	close(session.done)
}

func (m *Manager) run(ctx context.Context, session *Session) {
	defer m.finish(session)

	body, err := m.streamer.StreamChat(ctx, session.chatID)
	if err != nil {
		m.report(ctx, err)
		return
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Split(splitFrames)

	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		frame, err := ParseFrame(raw)
		if err != nil {
			// Malformed frame closes the session early; frames already
			// applied remain in the store.
			m.report(ctx, err)
			return
		}
		// A superseded session must not touch the store, however late its
		// last read arrives.
		if ctx.Err() != nil || !m.isCurrent(session) {
			return
		}
		m.apply(session.chatID, frame)
	}
	if err := scanner.Err(); err != nil {
		m.report(ctx, err)
	}
}

func (m *Manager) apply(chatID string, frame *Frame) {
	switch frame.Event {
	case EventStart:
		m.store.AddMessage(chatID, store.Message{ID: frame.MessageID, Role: store.RoleAssistant})
		m.store.SetAwaitingFirstToken(false)
	case EventMessage:
		m.store.UpdateMessageByID(chatID, frame.MessageID, frame.Content, nil)
	case EventComplete:
		final := &store.FinalChunk{
			CompletionTokens: frame.CompletionTokens,
			ResponseTime:     frame.ResponseTime.String(),
		}
		m.store.UpdateMessageByID(chatID, frame.MessageID, "", final)
	}
}

// report surfaces a failure unless it is the session's own cancellation.
func (m *Manager) report(ctx context.Context, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	if m.onError != nil {
		m.onError(err)
	}
}
