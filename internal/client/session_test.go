package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoServer reflects every text frame back to the sender.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				return
			}
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, s *Session) ([]byte, bool) {
	t.Helper()
	select {
	case payload, ok := <-s.Messages():
		return payload, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil, false
	}
}

func TestSessionRoundTrip(t *testing.T) {
	srv := echoServer(t)
	s := NewSession(wsURL(srv))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), []byte(`{"command":"DestroyTCP"}`)))
	payload, ok := receive(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"command":"DestroyTCP"}`, string(payload))
}

func TestSessionClose(t *testing.T) {
	srv := echoServer(t)
	s := NewSession(wsURL(srv))
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	_, ok := receive(t, s)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Send(context.Background(), []byte(`1`)), ErrSessionClosed)
}

func TestSessionRemoteClose(t *testing.T) {
	srv := echoServer(t)
	s := NewSession(wsURL(srv))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), []byte("bye")))
	_, ok := receive(t, s)
	assert.False(t, ok)
}

func TestSessionConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := NewSession(wsURL(srv))
	assert.Error(t, s.Connect(context.Background()))
	assert.ErrorIs(t, s.Send(context.Background(), []byte(`1`)), ErrSessionClosed)
	assert.NoError(t, s.Close())
}

func TestSessionConnectAfterClose(t *testing.T) {
	srv := echoServer(t)
	s := NewSession(wsURL(srv))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Connect(context.Background()), ErrSessionClosed)
}
