// Package store holds the client-side view of all chats and their messages.
// It is the only shared mutable state of the application: the orchestrator,
// the stream session and the push adapter all write to it.
package store

import (
	"sync"
)

// NewChatID is the reserved chat id of a conversation the server has not named yet.
const NewChatID = ""

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Vote on an assistant message.
type Vote string

const (
	VoteNone Vote = ""
	VoteUp   Vote = "upvote"
	VoteDown Vote = "downvote"
)

// Message is one turn of a conversation.
type Message struct {
	ID               string `json:"message_id"`
	Role             Role   `json:"role"`
	Content          string `json:"content"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	ResponseTime     string `json:"response_time,omitempty"`
	Vote             Vote   `json:"vote,omitempty"`
}

// Terminal reports whether the message has received its completion metadata.
// A terminal message is never mutated again.
func (m *Message) Terminal() bool {
	return m.CompletionTokens != 0 || m.ResponseTime != ""
}

// FinalChunk carries the completion metadata of an assistant message.
type FinalChunk struct {
	CompletionTokens int    `json:"completion_tokens"`
	ResponseTime     string `json:"response_time"`
}

// ChatSummary is one entry of the chat history list.
type ChatSummary struct {
	ChatID    string `json:"chat_id"`
	Title     string `json:"chat_title"`
	Timestamp string `json:"timestamp"`
}

// Store is a normalized in-memory table of chats. Each chat holds an ordered
// message list and an id-keyed map pointing at the same message objects, so a
// mutation through either view is visible through the other. Operations are
// total: absent chats are treated as empty, never as errors.
type Store struct {
	mu        sync.Mutex
	messages  map[string][]*Message
	byID      map[string]map[string]*Message
	histories []*ChatSummary

	streaming          bool
	awaitingFirstToken bool
}

// New instantiates an empty store.
func New() *Store {
	return &Store{
		messages: map[string][]*Message{},
		byID:     map[string]map[string]*Message{},
	}
}

// SetMessages replaces a chat's ordered message list and rebuilds its id map.
// Used after a bulk fetch.
func (s *Store) SetMessages(chatID string, messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*Message, 0, len(messages))
	index := make(map[string]*Message, len(messages))
	for i := range messages {
		message := messages[i]
		list = append(list, &message)
		index[message.ID] = &message
	}
	s.messages[chatID] = list
	s.byID[chatID] = index
}

// AddMessage appends a message to the end of a chat.
func (s *Store) AddMessage(chatID string, message Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(chatID, &message)
}

// AddMessageAt truncates the chat's message list to index and installs the
// message as the sole element at that position. Everything from index onward
// is discarded, from the id map too. This is how editing a past user message
// and regenerating an assistant reply are both expressed: replace the tail
// with one new user turn.
func (s *Store) AddMessageAt(chatID string, message Message, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[chatID]
	if index < 0 {
		index = 0
	}
	if index > len(list) {
		index = len(list)
	}
	dropped := list[index:]
	index2 := s.index(chatID)
	for _, m := range dropped {
		delete(index2, m.ID)
	}
	s.messages[chatID] = append(list[:index:index], &message)
	index2[message.ID] = &message
}

func (s *Store) add(chatID string, message *Message) {
	s.messages[chatID] = append(s.messages[chatID], message)
	s.index(chatID)[message.ID] = message
}

// index returns the id map of a chat, creating it if absent. Callers hold the lock.
func (s *Store) index(chatID string) map[string]*Message {
	index, ok := s.byID[chatID]
	if !ok {
		index = map[string]*Message{}
		s.byID[chatID] = index
	}
	return index
}

// UpdateMessageID renames the most recent user message to the server-assigned
// id, reconciling the provisional id written by the optimistic insert. A
// brand-new conversation accumulates messages under NewChatID until the server
// names it; those messages are adopted under the resolved chat id here.
func (s *Store) UpdateMessageID(chatID, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.messages[chatID]
	if !ok && chatID != NewChatID {
		list = s.messages[NewChatID]
		if len(list) > 0 {
			s.messages[chatID] = list
			index := make(map[string]*Message, len(list))
			for _, m := range list {
				index[m.ID] = m
			}
			s.byID[chatID] = index
			delete(s.messages, NewChatID)
			delete(s.byID, NewChatID)
		}
	}

	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Role != RoleUser {
			continue
		}
		message := list[i]
		delete(s.index(chatID), message.ID)
		message.ID = newID
		s.index(chatID)[newID] = message
		return
	}
}

// UpdateMessageByID appends content to the identified message, merging in the
// final chunk when present. If no such message exists yet it is created as an
// assistant message: the first delta after a stream's start frame materializes
// the message without a separate create step.
func (s *Store) UpdateMessageByID(chatID, messageID, content string, final *FinalChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message, ok := s.index(chatID)[messageID]; ok {
		message.Content += content
		if final != nil {
			message.CompletionTokens = final.CompletionTokens
			message.ResponseTime = final.ResponseTime
		}
		return
	}

	message := &Message{ID: messageID, Role: RoleAssistant, Content: content}
	if final != nil {
		message.CompletionTokens = final.CompletionTokens
		message.ResponseTime = final.ResponseTime
	}
	s.add(chatID, message)
}

// UpdateVote sets a message's vote in place. No-op if the message is absent.
func (s *Store) UpdateVote(chatID, messageID string, vote Vote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message, ok := s.byID[chatID][messageID]; ok {
		message.Vote = vote
	}
}

// RemoveChat deletes a chat's messages and its history entry. Unconditional:
// it does not care whether the chat is currently displayed.
func (s *Store) RemoveChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, chatID)
	delete(s.byID, chatID)
	histories := s.histories[:0]
	for _, history := range s.histories {
		if history.ChatID != chatID {
			histories = append(histories, history)
		}
	}
	s.histories = histories
}

// SetHistories replaces the chat history list.
func (s *Store) SetHistories(histories []ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = make([]*ChatSummary, 0, len(histories))
	for i := range histories {
		history := histories[i]
		s.histories = append(s.histories, &history)
	}
}

// Histories returns a snapshot of the chat history list.
func (s *Store) Histories() []ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	histories := make([]ChatSummary, 0, len(s.histories))
	for _, history := range s.histories {
		histories = append(histories, *history)
	}
	return histories
}

// Messages returns a snapshot of a chat's ordered message list. Message
// content is not stable mid-stream; callers get copies.
func (s *Store) Messages(chatID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]Message, 0, len(s.messages[chatID]))
	for _, message := range s.messages[chatID] {
		messages = append(messages, *message)
	}
	return messages
}

// Message returns a copy of a single message.
func (s *Store) Message(chatID, messageID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message, ok := s.byID[chatID][messageID]; ok {
		return *message, true
	}
	return Message{}, false
}

// Clear resets all state. Used on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = map[string][]*Message{}
	s.byID = map[string]map[string]*Message{}
	s.histories = nil
	s.streaming = false
	s.awaitingFirstToken = false
}

// SetStreaming flips the global "streaming in progress" indicator.
func (s *Store) SetStreaming(streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = streaming
}

// Streaming reports whether a stream session is currently delivering tokens.
func (s *Store) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// SetAwaitingFirstToken flips the global "awaiting first token" indicator.
func (s *Store) SetAwaitingFirstToken(awaiting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaitingFirstToken = awaiting
}

// AwaitingFirstToken reports whether a send is in flight with no token received yet.
func (s *Store) AwaitingFirstToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingFirstToken
}
