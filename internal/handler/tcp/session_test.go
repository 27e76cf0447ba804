package tcp

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helphub/relay-service/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionSendWritesFramedLine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sess := newSession("medic-7", server, testLogger())
	go sess.writePump()
	defer sess.Close()

	rec := model.Record{
		ID: "m-1", Kind: model.KindDirect, From: "base", To: "medic-7",
		Timestamp: 42, Body: "hello", Priority: model.PriorityNormal,
	}
	require.NoError(t, sess.Send(rec))

	client.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, string(model.Marshal(rec))+"\n", line)
}

func TestSendOnClosedSessionFails(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sess := newSession("medic-7", server, testLogger())
	sess.Close()

	err := sess.Send(model.New(model.KindDirect, "a", "medic-7", "x", model.PriorityNormal))
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	_, server := net.Pipe()
	sess := newSession("medic-7", server, testLogger())

	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close())
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	_, server := net.Pipe()
	defer server.Close()
	sess := newSession("medic-7", server, testLogger())

	first := sess.LastActivity()
	sess.Touch()
	assert.False(t, sess.LastActivity().Before(first))
}

func TestWritePumpExitsWhenPeerDisappears(t *testing.T) {
	client, server := net.Pipe()

	sess := newSession("medic-7", server, testLogger())
	done := make(chan struct{})
	go func() {
		sess.writePump()
		close(done)
	}()

	client.Close()
	// The next write fails against the closed pipe and the pump marks the
	// session dead.
	sess.Send(model.New(model.KindDirect, "a", "medic-7", "x", model.PriorityNormal))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not exit")
	}
	select {
	case <-sess.closed:
	default:
		t.Fatal("session not marked closed")
	}
}
