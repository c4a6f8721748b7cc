package session

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tchat/cli/session/styles"
	"tchat/internal/store"
)

// View renders the model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(m.renderTitle())
	b.WriteString("\n")

	b.WriteString(styles.ViewportStyle.Render(m.viewport.View()))
	b.WriteString("\n")

	switch {
	case m.confirmingDelete:
		b.WriteString(m.renderConfirmDialog())
		b.WriteString("\n")
		b.WriteString(styles.HelpStyle.Render("Press Y to confirm, N or Esc to cancel"))

	case m.streaming:
		label := "Generating..."
		if m.awaitingFirstToken {
			label = "Waiting for reply..."
		}
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), label))

	default:
		b.WriteString(styles.TextAreaStyle.Render(m.textarea.View()))
		b.WriteString("\n")
		if m.editIndex != nil {
			b.WriteString(styles.HelpStyle.Render("Editing message — Ctrl+J resends, Esc cancels"))
		}
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return m.alertClipboardWrite.Render(b.String())
}

func (m *Model) renderTitle() string {
	chatID := m.controller.ActiveChat()
	chatLabel := "new chat"
	if chatID != store.NewChatID {
		chatLabel = chatID
		for _, summary := range m.store.Histories() {
			if summary.ChatID == chatID && summary.Title != "" {
				chatLabel = styles.Truncate(summary.Title, styles.TruncateLength)
				break
			}
		}
	}

	parameters := m.controller.Parameters()
	title := fmt.Sprintf(" 🤖 %s │ 💬 %s │ 🌡 %.2f ", parameters.Model, chatLabel, parameters.Temperature)
	return styles.TitleStyle.Width(m.width).Render(title)
}

func (m *Model) renderMessages() string {
	var b strings.Builder
	m.messageViewportOffsets = make([]int, len(m.messages))
	line := 0

	for i, message := range m.messages {
		if i > 0 {
			b.WriteString("\n\n")
			line += 2
		}
		m.messageViewportOffsets[i] = line

		var rendered string
		switch message.Role {
		case store.RoleUser:
			rendered = m.styleFor(i, styles.UserMessageStyle).Render(m.renderer.Render(message.Content, true))

		case store.RoleAssistant:
			content := message.Content
			finalized := message.Terminal()
			streamingThis := m.streaming && !finalized && i == len(m.messages)-1
			md := m.renderer.Render(content, finalized)
			if streamingThis {
				md += styles.SpinnerStyle.Render("▋")
			}
			rendered = m.styleFor(i, styles.AssistantMessageStyle).Render(md)
			if trailer := renderTrailer(&message); trailer != "" {
				rendered += "\n" + trailer
			}
		}

		b.WriteString(rendered)
		line += strings.Count(rendered, "\n") + 1
	}

	return b.String()
}

// styleFor returns the message style, swapped for the selection style when the
// message is the navigated one.
func (m *Model) styleFor(index int, base lipgloss.Style) lipgloss.Style {
	if index == m.navigationMessageIndex {
		return styles.SelectedMessageStyle
	}
	return base
}

// renderTrailer renders the vote marker and completion stats under an
// assistant message.
func renderTrailer(message *store.Message) string {
	var parts []string
	switch message.Vote {
	case store.VoteUp:
		parts = append(parts, styles.VoteUpStyle.Render("▲ upvoted"))
	case store.VoteDown:
		parts = append(parts, styles.VoteDownStyle.Render("▼ downvoted"))
	}
	if message.Terminal() {
		stats := fmt.Sprintf("%d tokens", message.CompletionTokens)
		if message.ResponseTime != "" {
			stats += fmt.Sprintf(" · %ss", message.ResponseTime)
		}
		parts = append(parts, styles.StatsStyle.Render(stats))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderConfirmDialog() string {
	var b strings.Builder
	b.WriteString(styles.ConfirmTitleStyle.Render("🗑 Delete this conversation?"))
	b.WriteString("\n\n")
	b.WriteString(styles.ConfirmDetailStyle.Render(fmt.Sprintf(" %s ", m.controller.ActiveChat())))
	return styles.ConfirmBoxStyle.Render(b.String())
}
