package api

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"tchat/internal/store"
)

// Parameters are the generation parameters sent with every turn.
type Parameters struct {
	OutputLength      int     `json:"output_length"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	Model             string  `json:"model"`
}

// Clamp constrains the parameters to the ranges the backend accepts.
func (p *Parameters) Clamp() {
	p.OutputLength = clampInt(p.OutputLength, 0, 1024)
	p.Temperature = clampFloat(p.Temperature, 0, 1)
	p.TopP = clampFloat(p.TopP, 0, 1)
	p.RepetitionPenalty = clampFloat(p.RepetitionPenalty, 1, 2)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SendMessageRequest posts one user turn. ChatID is empty for a brand-new
// conversation. MessageID and MessageIndex are set when editing or
// regenerating: the backend truncates the stored history at that point.
type SendMessageRequest struct {
	ChatID       string     `json:"chat_id"`
	UserID       string     `json:"user_id"`
	Message      string     `json:"message"`
	MessageID    string     `json:"message_id,omitempty"`
	MessageIndex *int       `json:"message_index,omitempty"`
	Parameters   Parameters `json:"parameters"`
}

// SendMessageResponse names the chat and the user message the backend recorded.
type SendMessageResponse struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	ChatTitle string `json:"chat_title,omitempty"`
}

// SendMessage posts a user turn and returns the server-assigned identifiers.
func (c *Client) SendMessage(ctx context.Context, request *SendMessageRequest) (*SendMessageResponse, error) {
	response := &SendMessageResponse{}
	if err := c.do(ctx, http.MethodPost, "/chats", request, nil, response); err != nil {
		return nil, err
	}
	return response, nil
}

// StreamChat opens the incremental-response stream for a chat. The returned
// body delivers blank-line separated JSON frames until the turn completes.
func (c *Client) StreamChat(ctx context.Context, chatID string) (io.ReadCloser, error) {
	params := url.Values{"chat_id": {chatID}}
	return c.stream(ctx, http.MethodGet, "/chats/stream", params)
}

// ChatHistory fetches the user's chat list, most recent first.
func (c *Client) ChatHistory(ctx context.Context, userID string) ([]store.ChatSummary, error) {
	var response struct {
		History []store.ChatSummary `json:"history"`
	}
	params := url.Values{"user_id": {userID}}
	if err := c.do(ctx, http.MethodGet, "/chats", nil, params, &response); err != nil {
		return nil, err
	}
	return response.History, nil
}

// ChatMessages fetches a chat's full message list.
func (c *Client) ChatMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	var response struct {
		Messages []store.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats/"+chatID+"/messages", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Messages, nil
}

// VoteMessage records a vote. The store is updated by the push channel echo,
// not here.
func (c *Client) VoteMessage(ctx context.Context, chatID, messageID string, vote store.Vote) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"vote_type":  vote,
	}
	return c.do(ctx, http.MethodPost, "/chats/vote", payload, nil, nil)
}

// DeleteChat deletes a chat server-side.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	payload := map[string]any{"chat_id": chatID}
	return c.do(ctx, http.MethodPost, "/chats/delete", payload, nil, nil)
}
