package stream

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tchat/internal/store"
)

type fakeStreamer struct {
	bodies map[string]io.ReadCloser
	err    error
}

func (f *fakeStreamer) StreamChat(ctx context.Context, chatID string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bodies[chatID], nil
}

func streamerFor(chatID, body string) *fakeStreamer {
	return &fakeStreamer{bodies: map[string]io.ReadCloser{chatID: io.NopCloser(strings.NewReader(body))}}
}

func wait(t *testing.T, session *Session) {
	t.Helper()
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestParseFrame(t *testing.T) {
	t.Parallel()

	frame, err := ParseFrame([]byte(`{"event": "message", "message_id": "m1", "content": "hi"}`))
	require.NoError(t, err)
	assert.Equal(t, EventMessage, frame.Event)
	assert.Equal(t, "m1", frame.MessageID)
	assert.Equal(t, "hi", frame.Content)

	// response_time arrives as a float on the wire.
	frame, err = ParseFrame([]byte(`{"event": "complete", "message_id": "m1", "completion_tokens": 12, "response_time": 1.57}`))
	require.NoError(t, err)
	assert.Equal(t, 12, frame.CompletionTokens)
	assert.Equal(t, "1.57", frame.ResponseTime.String())

	_, err = ParseFrame([]byte(`{"event": "bogus"}`))
	assert.Error(t, err)

	_, err = ParseFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestSplitFrames(t *testing.T) {
	t.Parallel()

	scan := func(input string, atEOF bool) (advances []int, tokens []string) {
		data := []byte(input)
		for {
			advance, token, err := splitFrames(data, atEOF)
			require.NoError(t, err)
			if token == nil && advance == 0 {
				return advances, tokens
			}
			advances = append(advances, advance)
			tokens = append(tokens, string(token))
			data = data[advance:]
			if len(data) == 0 {
				return advances, tokens
			}
		}
	}

	// Several frames in one read.
	_, tokens := scan("{\"a\":1}\n\n{\"b\":2}\n\n", false)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, tokens)

	// No delimiter yet: nothing emitted, bytes retained.
	advances, _ := scan(`{"partial":`, false)
	assert.Empty(t, advances)

	// Trailing unterminated frame is flushed at EOF.
	_, tokens = scan("{\"a\":1}\n\n{\"b\":2}", true)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, tokens)
}

func TestSessionAppliesFrames(t *testing.T) {
	t.Parallel()
	s := store.New()
	s.SetAwaitingFirstToken(true)

	body := strings.Join([]string{
		`{"event": "start", "message_id": "a1"}`,
		`{"event": "message", "message_id": "a1", "content": "Hello"}`,
		`{"event": "message", "message_id": "a1", "content": ", "}`,
		`{"event": "message", "message_id": "a1", "content": "world"}`,
		`{"event": "complete", "message_id": "a1", "completion_tokens": 5, "response_time": 0.8}`,
	}, "\n\n")
	manager := NewManager(s, streamerFor("c1", body), nil)

	session := manager.Start("c1")
	wait(t, session)

	messages := s.Messages("c1")
	require.Len(t, messages, 1)
	assert.Equal(t, store.RoleAssistant, messages[0].Role)
	assert.Equal(t, "Hello, world", messages[0].Content)
	assert.Equal(t, 5, messages[0].CompletionTokens)
	assert.Equal(t, "0.8", messages[0].ResponseTime)
	assert.True(t, messages[0].Terminal())

	assert.False(t, s.Streaming())
	assert.False(t, s.AwaitingFirstToken())
	assert.False(t, manager.Active())
}

func TestFrameSpanningReads(t *testing.T) {
	t.Parallel()
	s := store.New()

	reader, writer := io.Pipe()
	manager := NewManager(s, &fakeStreamer{bodies: map[string]io.ReadCloser{"c1": reader}}, nil)
	session := manager.Start("c1")

	// One frame delivered byte-split mid-JSON across two writes.
	go func() {
		writer.Write([]byte(`{"event": "start", "message`))
		writer.Write([]byte("_id\": \"a1\"}\n\n"))
		writer.Write([]byte(`{"event": "message", "message_id": "a1", "con`))
		writer.Write([]byte("tent\": \"hi\"}\n\n"))
		writer.Close()
	}()
	wait(t, session)

	messages := s.Messages("c1")
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Content)
}

func TestMalformedFrameClosesSessionEarly(t *testing.T) {
	t.Parallel()
	s := store.New()

	body := strings.Join([]string{
		`{"event": "start", "message_id": "a1"}`,
		`{"event": "message", "message_id": "a1", "content": "kept"}`,
		`this is not json`,
		`{"event": "message", "message_id": "a1", "content": "never applied"}`,
	}, "\n\n")

	var reported error
	manager := NewManager(s, streamerFor("c1", body), func(err error) {
		reported = err
	})

	session := manager.Start("c1")
	wait(t, session)

	// Frames applied before the malformed one survive.
	messages := s.Messages("c1")
	require.Len(t, messages, 1)
	assert.Equal(t, "kept", messages[0].Content)
	assert.Error(t, reported)
	assert.False(t, s.Streaming())
}

func TestStartSupersedesRunningSession(t *testing.T) {
	t.Parallel()
	s := store.New()

	firstReader, firstWriter := io.Pipe()
	secondBody := "{\"event\": \"start\", \"message_id\": \"a2\"}\n\n" +
		"{\"event\": \"message\", \"message_id\": \"a2\", \"content\": \"second\"}\n\n"
	streamer := &fakeStreamer{bodies: map[string]io.ReadCloser{
		"c1": firstReader,
		"c2": io.NopCloser(strings.NewReader(secondBody)),
	}}
	manager := NewManager(s, streamer, nil)

	first := manager.Start("c1")

	// Second session takes over before the first has delivered anything.
	second := manager.Start("c2")
	wait(t, second)

	// A late frame on the superseded stream must not reach the store.
	firstWriter.Write([]byte("{\"event\": \"message\", \"message_id\": \"a1\", \"content\": \"late\"}\n\n"))
	firstWriter.Close()
	wait(t, first)

	assert.Empty(t, s.Messages("c1"))
	messages := s.Messages("c2")
	require.Len(t, messages, 1)
	assert.Equal(t, "second", messages[0].Content)
}

func TestSupersededSessionDoesNotClearIndicators(t *testing.T) {
	t.Parallel()
	s := store.New()

	firstReader, firstWriter := io.Pipe()
	secondReader, secondWriter := io.Pipe()
	defer secondWriter.Close()

	streamer := &fakeStreamer{bodies: map[string]io.ReadCloser{
		"c1": firstReader,
		"c2": secondReader,
	}}
	manager := NewManager(s, streamer, nil)
	first := manager.Start("c1")

	manager.Start("c2")

	// First session tears down while the second still streams.
	firstWriter.Close()
	wait(t, first)

	assert.True(t, s.Streaming())
	assert.True(t, manager.Active())
}

func TestStopIsNotAnError(t *testing.T) {
	t.Parallel()
	s := store.New()

	reader, writer := io.Pipe()
	var reported error
	manager := NewManager(s, &fakeStreamer{bodies: map[string]io.ReadCloser{"c1": reader}}, func(err error) {
		reported = err
	})

	session := manager.Start("c1")
	manager.Stop()
	writer.Close()
	wait(t, session)

	assert.NoError(t, reported)
	assert.False(t, s.Streaming())
	assert.False(t, manager.Active())
}

func TestStreamOpenFailureIsReported(t *testing.T) {
	t.Parallel()
	s := store.New()

	var reported error
	manager := NewManager(s, &fakeStreamer{err: io.ErrUnexpectedEOF}, func(err error) {
		reported = err
	})

	session := manager.Start("c1")
	wait(t, session)

	assert.ErrorIs(t, reported, io.ErrUnexpectedEOF)
	assert.False(t, s.Streaming())
}
