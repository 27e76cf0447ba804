package tcp

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helphub/relay-service/config"
	"github.com/helphub/relay-service/internal/adapter/msglog"
	"github.com/helphub/relay-service/internal/domain/model"
	"github.com/helphub/relay-service/internal/domain/registry"
	"github.com/helphub/relay-service/internal/observability"
	"github.com/helphub/relay-service/internal/security"
	"github.com/helphub/relay-service/internal/service"
	"github.com/helphub/relay-service/internal/store"
)

type framedFixture struct {
	server *Server
	router *service.Router
	addr   string
}

func newFramedFixture(t *testing.T) *framedFixture {
	t.Helper()
	dir := t.TempDir()
	keystore := filepath.Join(dir, "helphub.keystore")
	require.NoError(t, security.Generate(keystore, "test-pass"))

	logger := testLogger()
	queue, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	audit, err := msglog.New(filepath.Join(dir, "messages.log"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	router := service.NewRouter(registry.New(), queue, audit, observability.New(), logger)

	cfg := &config.Config{
		TCPPort:          0,
		KeystorePath:     keystore,
		KeystorePassword: "test-pass",
	}
	srv := NewServer(cfg, router, observability.New(), logger)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	return &framedFixture{server: srv, router: router, addr: srv.ln.Addr().String()}
}

func (f *framedFixture) dial(t *testing.T, identity string) (*tls.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := tls.Dial("tcp", f.addr, &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	fmt.Fprintf(conn, "%s\n", identity)
	return conn, bufio.NewReader(conn)
}

func (f *framedFixture) waitOnline(t *testing.T, identity string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.router.IsTaken(identity)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRegisterAndRelay(t *testing.T) {
	f := newFramedFixture(t)

	base, baseReader := f.dial(t, "base")
	f.waitOnline(t, "base")

	medic, _ := f.dial(t, "medic-7")
	f.waitOnline(t, "medic-7")

	rec := model.New(model.KindDirect, "medic-7", "base", "casualty report", model.PriorityHigh)
	medic.Write(append(model.Marshal(rec), '\n'))

	base.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := baseReader.ReadString('\n')
	require.NoError(t, err)

	got, err := model.Unmarshal([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "casualty report", got.Body)
}

func TestDuplicateIdentityRejected(t *testing.T) {
	f := newFramedFixture(t)

	f.dial(t, "base")
	f.waitOnline(t, "base")

	dup, dupReader := f.dial(t, "base")
	dup.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := dupReader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"type":"ERROR"`)
	assert.Contains(t, line, "ID_TAKEN")
}

func TestEmptyIdentityRejected(t *testing.T) {
	f := newFramedFixture(t)

	conn, reader := f.dial(t, "")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "INVALID_ID")
}

func TestStopTerminatesLiveSessions(t *testing.T) {
	f := newFramedFixture(t)

	f.dial(t, "base")
	f.waitOnline(t, "base")

	// A half-open peer that never sent its identity line must not hold
	// shutdown either.
	conn, err := tls.Dial("tcp", f.addr, &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.Handshake())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, f.server.Stop(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestOfflineReplayOverWire(t *testing.T) {
	f := newFramedFixture(t)

	rec := model.New(model.KindDirect, "medic-7", "base", "stored while offline", model.PriorityNormal)
	require.NoError(t, f.router.Route(rec))

	conn, reader := f.dial(t, "base")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	got, err := model.Unmarshal([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}
