package drawrelay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerShutsDownOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaticDir = t.TempDir()
	cfg.WebhookURL = "http://127.0.0.1:1/hook"

	server, err := NewServer(&cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, ln)
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, server.Handler, 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Protocol = "socket.io"
	_, err := NewServer(&cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.RedisURL = "not a url"
	_, err = NewServer(&cfg)
	assert.Error(t, err)
}
