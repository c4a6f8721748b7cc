package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tchat/internal/store"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, func() string { return "test-token" }, nil)
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chats", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var request SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "hello", request.Message)
		assert.Equal(t, "user-1", request.UserID)
		assert.Equal(t, 150, request.Parameters.OutputLength)

		json.NewEncoder(w).Encode(map[string]string{
			"chat_id":    "c1",
			"message_id": "m1",
			"chat_title": "Greetings",
		})
	})

	response, err := client.SendMessage(context.Background(), &SendMessageRequest{
		UserID:     "user-1",
		Message:    "hello",
		Parameters: Parameters{OutputLength: 150},
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", response.ChatID)
	assert.Equal(t, "m1", response.MessageID)
	assert.Equal(t, "Greetings", response.ChatTitle)
}

func TestSendMessageIncludesTruncationPoint(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "u1", raw["message_id"])
		assert.Equal(t, float64(2), raw["message_index"])
		json.NewEncoder(w).Encode(map[string]string{"chat_id": "c1", "message_id": "u1"})
	})

	index := 2
	_, err := client.SendMessage(context.Background(), &SendMessageRequest{
		ChatID:       "c1",
		UserID:       "user-1",
		Message:      "edited",
		MessageID:    "u1",
		MessageIndex: &index,
	})
	require.NoError(t, err)
}

func TestChatHistory(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/chats", r.URL.Path)
		assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"history": []map[string]string{
				{"chat_id": "c1", "chat_title": "One", "timestamp": "2024-01-01T00:00:00Z"},
				{"chat_id": "c2", "chat_title": "Two"},
			},
		})
	})

	histories, err := client.ChatHistory(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, histories, 2)
	assert.Equal(t, "c1", histories[0].ChatID)
	assert.Equal(t, "One", histories[0].Title)
	assert.Equal(t, "2024-01-01T00:00:00Z", histories[0].Timestamp)
}

func TestChatMessages(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chats/c1/messages", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"message_id": "m1", "role": "user", "content": "question"},
				{"message_id": "m2", "role": "assistant", "content": "answer", "completion_tokens": 9, "vote": "upvote"},
			},
		})
	})

	messages, err := client.ChatMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, store.VoteUp, messages[1].Vote)
	assert.Equal(t, 9, messages[1].CompletionTokens)
}

func TestVoteMessage(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chats/vote", r.URL.Path)
		var raw map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "c1", raw["chat_id"])
		assert.Equal(t, "m1", raw["message_id"])
		assert.Equal(t, "downvote", raw["vote_type"])
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.VoteMessage(context.Background(), "c1", "m1", store.VoteDown))
}

func TestDeleteChat(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chats/delete", r.URL.Path)
		var raw map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "c1", raw["chat_id"])
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.DeleteChat(context.Background(), "c1"))
}

func TestStreamChat(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chats/stream", r.URL.Path)
		assert.Equal(t, "c1", r.URL.Query().Get("chat_id"))
		io.WriteString(w, "{\"event\": \"start\", \"message_id\": \"a1\"}\n\n")
	})

	body, err := client.StreamChat(context.Background(), "c1")
	require.NoError(t, err)
	defer body.Close()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event": "start"`)
}

func TestErrorDecoding(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "invalid vote type",
			"details": "vote_type must be upvote or downvote",
		})
	})

	err := client.VoteMessage(context.Background(), "c1", "m1", "sideways")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid vote type", apiErr.Message)
	assert.Equal(t, "vote_type must be upvote or downvote", apiErr.Details)
	assert.False(t, apiErr.IsAuth())
}

func TestAuthErrorCallback(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
	}))
	t.Cleanup(server.Close)

	var notified bool
	client := NewClient(server.URL, 5*time.Second, func() string { return "stale" }, func() { notified = true })

	err := client.DeleteChat(context.Background(), "c1")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsAuth())
	assert.True(t, notified)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		var raw map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "a@b.c", raw["email"])
		assert.Equal(t, "hunter2", raw["password"])
		json.NewEncoder(w).Encode(map[string]string{"token": "issued-token"})
	})

	token, err := client.Login(context.Background(), "a@b.c", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "issued-token", token)
}

func TestRegister(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/register", r.URL.Path)
		var raw map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "alice", raw["username"])
		json.NewEncoder(w).Encode(map[string]string{"token": "issued-token", "username": "alice"})
	})

	token, err := client.Register(context.Background(), "alice", "a@b.c", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "issued-token", token)
}

func TestParametersClamp(t *testing.T) {
	t.Parallel()
	parameters := Parameters{
		OutputLength:      5000,
		Temperature:       -1,
		TopP:              2,
		RepetitionPenalty: 0.5,
	}
	parameters.Clamp()
	assert.Equal(t, 1024, parameters.OutputLength)
	assert.Equal(t, 0.0, parameters.Temperature)
	assert.Equal(t, 1.0, parameters.TopP)
	assert.Equal(t, 1.0, parameters.RepetitionPenalty)
}
