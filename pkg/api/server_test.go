package api

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartServer_ShutsDownOnCancel(t *testing.T) {
	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- StartServer(ctx, ServerConfig{
			Bind:      "127.0.0.1",
			Port:      port,
			APIKey:    "test-key",
			LayoutDir: t.TempDir(),
		}, Dependencies{})
	}()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartServer_RequiresAPIKey(t *testing.T) {
	err := StartServer(context.Background(), ServerConfig{Port: 0}, Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestServerFactory(t *testing.T) {
	starter := NewServerFactory().CreateServerStarter()
	require.NotNil(t, starter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := starter.StartServer(ctx, ServerConfig{Bind: "127.0.0.1", Port: freePort(t), APIKey: "k"}, Dependencies{})
	assert.NoError(t, err)
}

func TestNewServerDefaults(t *testing.T) {
	s := NewServer(ServerConfig{APIKey: "k"}, Dependencies{})
	assert.Equal(t, int64(defaultMaxBodySize), s.config.MaxBodySize)
	assert.NotNil(t, s.deps.Metrics)
	assert.NotNil(t, s.deps.Formatters)
	assert.NotNil(t, s.log)
}
