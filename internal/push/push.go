// Package push maintains the persistent out-of-band notification
// subscription and applies vote and deletion events to the message store.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tchat/internal/debug"
	"tchat/internal/store"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Event names delivered over the push channel.
const (
	eventVoteUpdate  = "vote_update"
	eventChatDeleted = "chat_deleted"
)

type event struct {
	Event     string     `json:"event"`
	ChatID    string     `json:"chat_id"`
	MessageID string     `json:"message_id"`
	Vote      store.Vote `json:"vote"`
}

// Adapter consumes the push channel for the lifetime of the application,
// independent of chat navigation. Delivery is at-most-once: reconnects are
// transparent and missed events are not replayed.
type Adapter struct {
	url        string
	store      *store.Store
	activeChat func() string
	token      func() string
}

// New instantiates an adapter. activeChat is read at event-arrival time, so
// navigating between chats changes what future vote events may mutate. token
// may be nil.
func New(url string, s *store.Store, activeChat func() string, token func() string) *Adapter {
	return &Adapter{url: url, store: s, activeChat: activeChat, token: token}
}

// Run maintains the subscription until the context is cancelled,
// reconnecting with capped exponential backoff.
func (a *Adapter) Run(ctx context.Context) error {
	log := debug.GetLogger()
	backoff := initialBackoff
	for {
		start := time.Now()
		if err := a.listen(ctx); err != nil && ctx.Err() == nil {
			log.Warn("push channel disconnected", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A session that held for a while earns a fresh backoff.
		if time.Since(start) > maxBackoff {
			backoff = initialBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// listen dials the channel and applies events until the connection drops or
// the context is cancelled.
func (a *Adapter) listen(ctx context.Context) error {
	header := http.Header{}
	if a.token != nil {
		if token := a.token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, header)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		a.handle(raw)
	}
}

func (a *Adapter) handle(raw []byte) {
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		debug.GetLogger().Warn("dropping malformed push event", "error", err)
		return
	}
	switch ev.Event {
	case eventVoteUpdate:
		// Votes only matter for the chat on screen right now.
		if ev.ChatID == a.activeChat() {
			a.store.UpdateVote(ev.ChatID, ev.MessageID, ev.Vote)
		}
	case eventChatDeleted:
		// Deletions are reflected everywhere, active or not.
		a.store.RemoveChat(ev.ChatID)
	default:
		debug.GetLogger().Debug("ignoring push event", "event", ev.Event)
	}
}
