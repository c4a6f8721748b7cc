// Package session implements the interactive chat view. The view is a thin
// consumer of the engine: every keybinding maps to a controller call and a
// render tick re-reads the message store, so stream deltas and push events
// show up without any direct coupling to the transport.
package session

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.dalton.dog/bubbleup"

	"tchat/cli/session/styles"
	"tchat/internal/chat"
	"tchat/internal/debug"
	"tchat/internal/history"
	"tchat/internal/markdown"
	"tchat/internal/store"
)

const (
	renderTickInterval = 66 * time.Millisecond
)

var log = debug.GetLogger()

// Model is the Bubble Tea model for the chat session.
type Model struct {
	// Core dependencies
	ctx        context.Context
	store      *store.Store
	controller *chat.Controller

	// Snapshot of the store taken on the last render tick.
	messages               []store.Message
	streaming              bool
	awaitingFirstToken     bool
	messageViewportOffsets []int // Line offset of each message in the viewport.

	// UI components
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *markdown.Renderer

	// UI state
	width    int
	height   int
	ready    bool
	err      error
	quitting bool

	// Alert notifications.
	alertClipboardWrite bubbleup.AlertModel

	// Edit state: index of the user message loaded into the textarea, if any.
	editIndex *int

	// Chat deletion confirmation.
	confirmingDelete bool

	// Input history
	history           *history.History
	historyNavigating bool

	// Index of the message currently navigated (-1 if none is selected).
	navigationMessageIndex int
}

// New creates a chat session model.
func New(
	ctx context.Context,
	s *store.Store,
	controller *chat.Controller,
	inputHistory *history.History,
) (*Model, error) {
	ta := textarea.New()
	ta.Placeholder = "Type your message... (Ctrl+J to send, Alt+R to regenerate, Alt+P/N for history, Ctrl+C to quit)"
	ta.Focus()
	ta.CharLimit = 0
	ta.SetWidth(styles.DefaultTextareaWidth)
	ta.SetHeight(styles.MinTextareaHeight)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(true)
	ta.Prompt = ""

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.SpinnerStyle

	alertClipboardWrite := bubbleup.NewAlertModel(25, true, 1)

	renderer, err := markdown.NewRenderer(styles.DefaultTextareaWidth)
	if err != nil {
		return nil, err
	}

	return &Model{
		ctx:                    ctx,
		store:                  s,
		controller:             controller,
		messages:               s.Messages(controller.ActiveChat()),
		textarea:               ta,
		spinner:                sp,
		renderer:               renderer,
		history:                inputHistory,
		alertClipboardWrite:    *alertClipboardWrite,
		navigationMessageIndex: -1,
	}, nil
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.alertClipboardWrite.Init(),
		tickCmd(),
	)
}

// refreshFromStore re-reads the engine state and re-renders the viewport.
// Called on every render tick, so stream deltas and push notifications land
// without explicit wiring.
func (m *Model) refreshFromStore() {
	m.messages = m.store.Messages(m.controller.ActiveChat())
	m.awaitingFirstToken = m.store.AwaitingFirstToken()

	streaming := m.store.Streaming() || m.awaitingFirstToken
	if streaming != m.streaming {
		m.streaming = streaming
		m.recalculateLayout()
	}
	if !m.ready {
		return
	}

	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

// lastAssistantIndex returns the index of the most recent assistant message,
// or -1 when there is none.
func (m *Model) lastAssistantIndex() int {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == store.RoleAssistant {
			return i
		}
	}
	return -1
}

// lastUserIndex returns the index of the most recent user message, or -1.
func (m *Model) lastUserIndex() int {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == store.RoleUser {
			return i
		}
	}
	return -1
}

// voteTargetIndex returns the assistant message a vote applies to: the
// navigated message when one is selected, the latest assistant reply otherwise.
func (m *Model) voteTargetIndex() int {
	if m.navigationMessageIndex != -1 &&
		m.navigationMessageIndex < len(m.messages) &&
		m.messages[m.navigationMessageIndex].Role == store.RoleAssistant {
		return m.navigationMessageIndex
	}
	return m.lastAssistantIndex()
}
