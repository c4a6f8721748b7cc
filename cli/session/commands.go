package session

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tchat/internal/chat"
	"tchat/internal/store"
)

// tickMsg drives the render loop: each tick re-reads the store snapshot.
type tickMsg time.Time

// sendDoneMsg reports the outcome of a send or edit turn.
type sendDoneMsg struct {
	err error
}

// actionDoneMsg reports the outcome of a vote, delete or regenerate.
type actionDoneMsg struct {
	err error
}

// EngineErrorMsg surfaces an asynchronous engine failure, such as a stream
// breaking mid-reply. Sent into the program from outside the update loop.
type EngineErrorMsg struct {
	Err error
}

func tickCmd() tea.Cmd {
	return tea.Tick(renderTickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// sendMessage validates the textarea content and issues the turn. An edit in
// progress resends the edited user message, truncating the tail.
func (m *Model) sendMessage() tea.Cmd {
	userInput := strings.TrimSpace(m.textarea.Value())
	if userInput == "" {
		return nil
	}

	m.history.Add(userInput)
	m.historyNavigating = false
	m.err = nil
	m.navigationMessageIndex = -1

	editIndex := m.editIndex
	m.editIndex = nil

	m.textarea.Reset()
	m.adjustTextareaHeight()

	controller := m.controller
	ctx := m.ctx
	return func() tea.Msg {
		var err error
		if editIndex != nil {
			err = controller.Edit(ctx, *editIndex, userInput)
		} else {
			err = controller.SendTurn(ctx, userInput, chat.TurnOptions{})
		}
		return sendDoneMsg{err: err}
	}
}

// regenerate discards the latest assistant reply and streams a new one.
func (m *Model) regenerate() tea.Cmd {
	index := m.lastAssistantIndex()
	if index == -1 {
		return nil
	}

	m.err = nil
	m.navigationMessageIndex = -1

	controller := m.controller
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: controller.Regenerate(ctx, index)}
	}
}

// vote records a vote on the targeted assistant message. The store is updated
// by the push channel echo, which the next render tick picks up.
func (m *Model) vote(vote store.Vote) tea.Cmd {
	index := m.voteTargetIndex()
	if index == -1 {
		return nil
	}
	target := m.messages[index]

	controller := m.controller
	ctx := m.ctx
	chatID := controller.ActiveChat()
	return func() tea.Msg {
		return actionDoneMsg{err: controller.Vote(ctx, chatID, target.ID, vote)}
	}
}

// deleteChat deletes the open conversation.
func (m *Model) deleteChat() tea.Cmd {
	chatID := m.controller.ActiveChat()
	if chatID == store.NewChatID {
		return nil
	}

	controller := m.controller
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: controller.DeleteChat(ctx, chatID)}
	}
}
