package session

import (
	"fmt"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"go.dalton.dog/bubbleup"
	"golang.design/x/clipboard"

	"tchat/internal/store"
)

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// Always update the alert model with every message
	outAlert, alertCmd := m.alertClipboardWrite.Update(msg)
	m.alertClipboardWrite = outAlert.(bubbleup.AlertModel)
	if alertCmd != nil {
		cmds = append(cmds, alertCmd)
	}

	// Log for non-tick messages only
	defer func() {
		switch msg.(type) {
		case tickMsg, spinner.TickMsg, cursor.BlinkMsg, tea.MouseMsg:
		// Skip logging for ticks
		default:
			log.Info("update completed", "msg_type", fmt.Sprintf("%T", msg), "navigation_index", m.navigationMessageIndex)
		}
	}()

	switch msg := msg.(type) {
	case tickMsg:
		m.refreshFromStore()
		cmds = append(cmds, tickCmd())
		return m, tea.Batch(cmds...)

	case sendDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.recalculateLayout()
		}
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.recalculateLayout()
		}
		return m, nil

	case EngineErrorMsg:
		m.err = msg.Err
		m.recalculateLayout()
		return m, nil

	case tea.FocusMsg:
		m.textarea.Focus()
		cmds = append(cmds, textarea.Blink)
		return m, tea.Batch(cmds...)

	case tea.BlurMsg:
		m.textarea.Blur()
		return m, nil

	case tea.KeyMsg:
		if m.confirmingDelete {
			switch msg.String() {
			case "y", "Y":
				m.confirmingDelete = false
				return m, m.deleteChat()
			case "n", "N", "esc":
				m.confirmingDelete = false
			}
			return m, nil
		}

		// Handle navigation commands.
		if msg.String() == "alt+{" {
			if m.navigationMessageIndex == -1 {
				m.navigationMessageIndex = len(m.messages)
			}
			if m.navigationMessageIndex > 0 {
				m.navigationMessageIndex-- // Go up one message.
				m.viewport.SetContent(m.renderMessages())
				m.scrollToNavigatedMessage()
			}
			return m, nil
		}
		if msg.String() == "alt+}" {
			if m.navigationMessageIndex != -1 {
				m.navigationMessageIndex++ // Go to next message.
				if m.navigationMessageIndex == len(m.messages) {
					m.navigationMessageIndex = -1
					m.viewport.GotoBottom()
				}
				m.viewport.SetContent(m.renderMessages())
				if m.navigationMessageIndex != -1 {
					m.scrollToNavigatedMessage()
				}
			}
			return m, nil
		}

		// Copy navigated message content to clipboard
		if msg.String() == "alt+w" && m.navigationMessageIndex != -1 && m.navigationMessageIndex < len(m.messages) {
			content := m.messages[m.navigationMessageIndex].Content
			clipboard.Write(clipboard.FmtText, []byte(content))
			cmds = append(cmds, m.alertClipboardWrite.NewAlertCmd(bubbleup.InfoKey, "Copied to clipboard!"))
			return m, tea.Batch(cmds...)
		}

		if msg.Alt && !m.streaming {
			switch msg.String() {
			case "alt+p":
				if entry, ok := m.history.Previous(m.textarea.Value()); ok {
					m.textarea.SetValue(entry)
					m.historyNavigating = true
					m.adjustTextareaHeight()
					return m, nil
				}
			case "alt+n":
				if entry, ok := m.history.Next(); ok {
					m.textarea.SetValue(entry)
					m.historyNavigating = true
					m.adjustTextareaHeight()
					return m, nil
				}
			case "alt+r":
				return m, m.regenerate()
			case "alt+e":
				if index := m.lastUserIndex(); index != -1 {
					i := index
					m.editIndex = &i
					m.textarea.SetValue(m.messages[index].Content)
					m.adjustTextareaHeight()
				}
				return m, nil
			case "alt+u":
				return m, m.vote(store.VoteUp)
			case "alt+d":
				return m, m.vote(store.VoteDown)
			case "alt+x":
				if m.controller.ActiveChat() != store.NewChatID {
					m.confirmingDelete = true
				}
				return m, nil
			}
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			if m.streaming {
				m.controller.StopStream()
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit

		case tea.KeyCtrlJ:
			if !m.streaming {
				return m, m.sendMessage()
			}

		case tea.KeyEnter:
			if m.historyNavigating {
				m.history.Reset()
				m.historyNavigating = false
			}

		case tea.KeyEsc:
			if m.editIndex != nil {
				m.editIndex = nil
				m.textarea.Reset()
				m.adjustTextareaHeight()
				return m, nil
			}
			if m.navigationMessageIndex != -1 {
				m.navigationMessageIndex = -1
				m.viewport.SetContent(m.renderMessages())
				m.viewport.GotoBottom()
				return m, nil
			}
		}

		if !m.streaming && m.historyNavigating {
			switch msg.Type {
			case tea.KeyRunes, tea.KeyBackspace, tea.KeyDelete:
				m.history.Reset()
				m.historyNavigating = false
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalculateLayout()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.streaming && !m.confirmingDelete {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
		m.adjustTextareaHeight()
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.streaming {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		} else {
			switch msg.String() {
			case "j", "k", "g", "G", "u", "d", "b", "ctrl+u", "ctrl+d", "f", " ":
				// Don't pass vim navigation keys to viewport while typing
			default:
				var cmd tea.Cmd
				m.viewport, cmd = m.viewport.Update(msg)
				cmds = append(cmds, cmd)
			}
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}
