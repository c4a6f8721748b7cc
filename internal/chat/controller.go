// Package chat orchestrates conversation turns: optimistic store writes,
// request issuance, identifier reconciliation and handoff to the stream
// session.
package chat

import (
	"context"
	"sync"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/scylladb/go-set/strset"

	"tchat/internal/api"
	"tchat/internal/store"
	"tchat/internal/stream"
)

// ValidationError rejects a turn before any network call. No store mutation
// has happened when one is returned.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Backend is the request/response surface of the chat API the controller needs.
type Backend interface {
	SendMessage(ctx context.Context, request *api.SendMessageRequest) (*api.SendMessageResponse, error)
	ChatHistory(ctx context.Context, userID string) ([]store.ChatSummary, error)
	ChatMessages(ctx context.Context, chatID string) ([]store.Message, error)
	VoteMessage(ctx context.Context, chatID, messageID string, vote store.Vote) error
	DeleteChat(ctx context.Context, chatID string) error
}

// Controller coordinates the message store, the backend and the stream
// manager. It also owns the live "active chat" cell the push adapter reads at
// event-arrival time.
type Controller struct {
	store   *store.Store
	backend Backend
	streams *stream.Manager
	userID  func() string

	mu         sync.Mutex
	activeChat string
	parameters api.Parameters

	onChatResolved func(chatID string)
}

// NewController instantiates a controller. userID is the authentication
// collaborator's current-user accessor; parameters seed the generation
// parameters sent with every turn.
func NewController(s *store.Store, backend Backend, streams *stream.Manager, userID func() string, parameters api.Parameters) *Controller {
	parameters.Clamp()
	return &Controller{
		store:      s,
		backend:    backend,
		streams:    streams,
		userID:     userID,
		parameters: parameters,
	}
}

// OnChatResolved registers the callback invoked with the server-assigned chat
// id once a new turn is accepted. Callers use it to navigate.
func (c *Controller) OnChatResolved(callback func(chatID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChatResolved = callback
}

// ActiveChat returns the chat id currently displayed. Read by the push
// adapter at event time, never captured at subscription time.
func (c *Controller) ActiveChat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeChat
}

// SetActiveChat records a navigation.
func (c *Controller) SetActiveChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeChat = chatID
}

// Parameters returns a copy of the current generation parameters.
func (c *Controller) Parameters() api.Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parameters
}

// SetParameters merges the set fields of partial over the current parameters
// and clamps the result to the backend's accepted ranges.
func (c *Controller) SetParameters(partial api.Parameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := mergo.Merge(&c.parameters, partial, mergo.WithOverride); err != nil {
		return errors.Wrap(err, "merging parameters")
	}
	c.parameters.Clamp()
	return nil
}

// TurnOptions identify the truncation point of an edit or regenerate turn.
// Zero value means a plain new message appended to the active chat.
type TurnOptions struct {
	// MessageID of the user turn being resent, when editing or regenerating.
	MessageID string
	// Index to truncate the message list at before inserting the user turn.
	Index *int
}

// SendTurn validates and sends one user turn: optimistic insert, send
// request, provisional-id reconciliation, then stream session start. On
// failure the optimistic user message stays in place; a retry resends it.
func (c *Controller) SendTurn(ctx context.Context, text string, opts TurnOptions) error {
	if text == "" {
		return &ValidationError{Reason: "empty message"}
	}
	userID := c.userID()
	if userID == "" {
		return &ValidationError{Reason: "no authenticated user"}
	}

	chatID := c.ActiveChat()
	c.store.SetAwaitingFirstToken(true)

	provisionalID := opts.MessageID
	if provisionalID == "" {
		provisionalID = uuid.New().String()
	}
	message := store.Message{ID: provisionalID, Role: store.RoleUser, Content: text}
	if opts.Index != nil {
		c.store.AddMessageAt(chatID, message, *opts.Index)
	} else {
		c.store.AddMessage(chatID, message)
	}

	request := &api.SendMessageRequest{
		ChatID:       chatID,
		UserID:       userID,
		Message:      text,
		MessageID:    opts.MessageID,
		MessageIndex: opts.Index,
		Parameters:   c.Parameters(),
	}
	response, err := c.backend.SendMessage(ctx, request)
	if err != nil {
		c.store.SetAwaitingFirstToken(false)
		return err
	}

	if opts.MessageID == "" {
		c.store.UpdateMessageID(response.ChatID, response.MessageID)
		if chatID == store.NewChatID {
			c.SetActiveChat(response.ChatID)
		}
		c.mu.Lock()
		callback := c.onChatResolved
		c.mu.Unlock()
		if callback != nil {
			callback(response.ChatID)
		}
	}

	c.streams.Start(response.ChatID)
	return nil
}

// Edit resends the user turn at index with new content, discarding it and
// everything after it.
func (c *Controller) Edit(ctx context.Context, index int, text string) error {
	messages := c.store.Messages(c.ActiveChat())
	if index < 0 || index >= len(messages) {
		return &ValidationError{Reason: "no such message"}
	}
	target := messages[index]
	if target.Role != store.RoleUser {
		return &ValidationError{Reason: "only user messages can be edited"}
	}
	return c.SendTurn(ctx, text, TurnOptions{MessageID: target.ID, Index: &index})
}

// Regenerate discards the assistant reply at index and everything after it,
// resending the content of the user turn that preceded it. The truncation
// point is the assistant's own position: the preceding user turn stays where
// it is and the resent copy takes the assistant's place.
func (c *Controller) Regenerate(ctx context.Context, index int) error {
	messages := c.store.Messages(c.ActiveChat())
	if index <= 0 || index >= len(messages) || messages[index].Role != store.RoleAssistant {
		return &ValidationError{Reason: "no assistant message to regenerate"}
	}
	previous := messages[index-1]
	if previous.Role != store.RoleUser {
		return &ValidationError{Reason: "no preceding user message"}
	}
	return c.SendTurn(ctx, previous.Content, TurnOptions{MessageID: previous.ID, Index: &index})
}

// StopStream cancels the active stream session, if any.
func (c *Controller) StopStream() {
	c.streams.Stop()
}

// Vote records a vote on a message. The store is updated by the push channel
// echo for the active chat, not here.
func (c *Controller) Vote(ctx context.Context, chatID, messageID string, vote store.Vote) error {
	return c.backend.VoteMessage(ctx, chatID, messageID, vote)
}

// DeleteChat deletes a chat and removes it locally. When the deleted chat is
// the one open, the active chat resets to a fresh conversation.
func (c *Controller) DeleteChat(ctx context.Context, chatID string) error {
	if err := c.backend.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	c.store.RemoveChat(chatID)
	if c.ActiveChat() == chatID {
		c.SetActiveChat(store.NewChatID)
	}
	return nil
}

// FetchChat loads a chat's history from the backend when the store has none,
// merging in only messages not already present. Messages the stream session
// wrote while the fetch was in flight win over the fetched copy.
func (c *Controller) FetchChat(ctx context.Context, chatID string) error {
	if chatID == store.NewChatID || len(c.store.Messages(chatID)) > 0 {
		return nil
	}
	fetched, err := c.backend.ChatMessages(ctx, chatID)
	if err != nil {
		return err
	}

	existing := c.store.Messages(chatID)
	seen := strset.New()
	for _, message := range existing {
		seen.Add(message.ID)
	}
	merged := existing
	for _, message := range fetched {
		if !seen.Has(message.ID) {
			merged = append(merged, message)
		}
	}
	if len(merged) > len(existing) {
		c.store.SetMessages(chatID, merged)
	}
	return nil
}

// FetchHistories loads the user's chat list into the store.
func (c *Controller) FetchHistories(ctx context.Context) error {
	userID := c.userID()
	if userID == "" {
		return &ValidationError{Reason: "no authenticated user"}
	}
	histories, err := c.backend.ChatHistory(ctx, userID)
	if err != nil {
		return err
	}
	c.store.SetHistories(histories)
	return nil
}

// Clear resets all conversation state. Used on logout.
func (c *Controller) Clear() {
	c.streams.Stop()
	c.store.Clear()
	c.SetActiveChat(store.NewChatID)
}
