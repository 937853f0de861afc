package subscribe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vssbroker/internal/shared/logger"
	"vssbroker/internal/vss/authz"
	"vssbroker/internal/vss/pathaddr"
	"vssbroker/internal/vss/tree"
)

const fixturePath = "../../../testdata/vss.json"

type fakeServer struct {
	mu       sync.Mutex
	messages map[uint64][][]byte
}

func newFakeServer() *fakeServer {
	return &fakeServer{messages: make(map[uint64][][]byte)}
}

func (f *fakeServer) SendToConnection(connectionID uint64, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[connectionID] = append(f.messages[connectionID], message)
	return nil
}

func (f *fakeServer) countFor(connectionID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[connectionID])
}

func newTestEngine(t *testing.T) (*Engine, *tree.TreeStore, *authz.AccessChecker, *fakeServer) {
	t.Helper()
	store, err := tree.New(fixturePath, nil)
	require.NoError(t, err)
	access := authz.NewAccessChecker(store)
	server := newFakeServer()
	log := logger.NewLogger()
	engine := New(store, access, server, log, 16)
	return engine, store, access, server
}

func authorizedChannel(id uint64, access *authz.AccessChecker, scope map[string]string) *authz.Channel {
	ch := authz.NewChannel(id, authz.TransportWS)
	concrete := access.ExpandScope(scope)
	ch.Authorize(time.Now().Add(time.Hour), false, map[string]authz.Perm{}, concrete)
	return ch
}

func TestSubscribe_ReturnsDistinctIDsForIdenticalRequests(t *testing.T) {
	engine, _, access, _ := newTestEngine(t)
	ch := authorizedChannel(1, access, map[string]string{"Vehicle.OBD.*": "r"})
	path := pathaddr.FromDotted("Vehicle.OBD.EngineSpeed")

	id1, err := engine.Subscribe(ch, path, "value")
	require.NoError(t, err)
	id2, err := engine.Subscribe(ch, path, "value")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestSubscribe_DeniedWithoutReadAccess(t *testing.T) {
	engine, _, access, _ := newTestEngine(t)
	ch := authorizedChannel(1, access, map[string]string{"Vehicle.Speed": "r"})
	path := pathaddr.FromDotted("Vehicle.OBD.EngineSpeed")

	_, err := engine.Subscribe(ch, path, "value")
	require.Error(t, err)
}

func TestSubscribe_UnknownPath(t *testing.T) {
	engine, _, access, _ := newTestEngine(t)
	ch := authorizedChannel(1, access, map[string]string{"*": "r"})

	_, err := engine.Subscribe(ch, pathaddr.FromDotted("Signal.RPM1"), "value")
	require.Error(t, err)
}

func TestPublishChange_FanOutAndUnsubscribe(t *testing.T) {
	engine, _, access, server := newTestEngine(t)
	defer engine.Stop()
	engine.RunInBackground()

	path := pathaddr.FromDotted("Vehicle.OBD.EngineSpeed")
	ch1 := authorizedChannel(1, access, map[string]string{"Vehicle.OBD.*": "r"})
	ch2 := authorizedChannel(2, access, map[string]string{"Vehicle.OBD.*": "r"})

	id1, err := engine.Subscribe(ch1, path, "value")
	require.NoError(t, err)
	_, err = engine.Subscribe(ch2, path, "value")
	require.NoError(t, err)

	engine.PublishChange(path, "value", "float", 123.0, time.Now())

	require.Eventually(t, func() bool {
		return server.countFor(1) == 1 && server.countFor(2) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, engine.Unsubscribe(id1))
	engine.PublishChange(path, "value", "float", 124.0, time.Now())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, server.countFor(1), "unsubscribed channel must receive no further notifications")
	assert.Equal(t, 2, server.countFor(2))
}

func TestUnsubscribeAll_RemovesEveryChannelSubscription(t *testing.T) {
	engine, _, access, _ := newTestEngine(t)
	ch := authorizedChannel(1, access, map[string]string{"Vehicle.OBD.*": "r"})

	id1, err := engine.Subscribe(ch, pathaddr.FromDotted("Vehicle.OBD.EngineSpeed"), "value")
	require.NoError(t, err)
	id2, err := engine.Subscribe(ch, pathaddr.FromDotted("Vehicle.OBD.Speed"), "value")
	require.NoError(t, err)

	engine.UnsubscribeAll(1)

	assert.Error(t, engine.Unsubscribe(id1))
	assert.Error(t, engine.Unsubscribe(id2))
}

func TestSubscribe_TokenExpiredIsRejected(t *testing.T) {
	engine, _, access, _ := newTestEngine(t)
	defer engine.Stop()
	engine.RunInBackground()

	path := pathaddr.FromDotted("Vehicle.OBD.EngineSpeed")
	concrete := access.ExpandScope(map[string]string{"Vehicle.OBD.*": "r"})

	ch := authz.NewChannel(1, authz.TransportWS)
	ch.Authorize(time.Now().Add(-time.Minute), false, map[string]authz.Perm{}, concrete)

	// The channel's scope covers the path, but its exp has already passed,
	// so the subscribe-time access check rejects it and no subscription
	// (and hence no delivery) ever exists for it.
	_, err := engine.Subscribe(ch, path, "value")
	require.Error(t, err, "an already-expired token must also fail the subscribe-time access check")
}
