package subscribe

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	vsserrors "vssbroker/internal/shared/errors"
	"vssbroker/internal/shared/goroutine"
	"vssbroker/internal/shared/logger"
	"vssbroker/internal/vss/authz"
	"vssbroker/internal/vss/pathaddr"
	"vssbroker/internal/vss/tree"
)

// subKey identifies a subscriber bucket by its exact (path, attribute)
// pair, keyed on the path's slashed form.
type subKey struct {
	path string
	attr string
}

// Engine is the subscription registry, ingestion queue, and dispatcher
// loop described in spec.md §4.5. The registry is protected by a mutex;
// the queue is a bounded multi-producer single-consumer channel drained
// by one long-lived dispatcher goroutine, grounded on the teacher's
// RedisHubEventBus subscribe-loop/goroutine.SafeGo pattern adapted to an
// in-process (non-Redis) registry.
type Engine struct {
	store   *tree.TreeStore
	access  *authz.AccessChecker
	server  Server
	log     logger.Interface
	queue   chan UpdateEvent
	mu      sync.Mutex
	byKey   map[subKey]map[string]*Subscriber
	byID    map[string]subKey
	pubMu   sync.RWMutex
	publish []Publisher
}

// New builds a SubscriptionEngine bound to store, access, and server,
// with an ingestion queue of the given capacity.
func New(store *tree.TreeStore, access *authz.AccessChecker, server Server, log logger.Interface, queueCapacity int) *Engine {
	return &Engine{
		store:  store,
		access: access,
		server: server,
		log:    log,
		queue:  make(chan UpdateEvent, queueCapacity),
		byKey:  make(map[subKey]map[string]*Subscriber),
		byID:   make(map[string]subKey),
	}
}

// SetServer binds the transport used to deliver notifications. It
// exists for callers whose Server implementation depends on this Engine
// (e.g. wsserver.Server needs the Engine as its SubscriptionCleaner) and
// so cannot be constructed before it; call it before RunInBackground,
// since the dispatcher goroutine reads the field without further
// synchronization once started.
func (e *Engine) SetServer(server Server) {
	e.server = server
}

// AddPublisher registers an external-bus mirror invoked on every
// delivered change, in addition to transport delivery.
func (e *Engine) AddPublisher(p Publisher) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	e.publish = append(e.publish, p)
}

// Run starts the dispatcher loop. It blocks until the queue is closed
// (on shutdown); callers launch it via goroutine.SafeGo.
func (e *Engine) Run() {
	for event := range e.queue {
		e.dispatch(event)
	}
}

// Stop closes the ingestion queue, letting Run drain and return.
func (e *Engine) Stop() {
	close(e.queue)
}

// Subscribe resolves path through the tree, checks read access, and
// registers a fresh subscription, per spec.md §4.5. A pattern that
// resolves to more than one leaf (e.g. a bare branch name) subscribes to
// the first leaf in traversal order — the Subscription data model holds
// exactly one concrete path per id.
func (e *Engine) Subscribe(ch *authz.Channel, path pathaddr.PathAddress, attribute string) (string, error) {
	leaves := e.store.ExpandLeaves(path)
	if len(leaves) == 0 {
		return "", vsserrors.NewPathNotFoundError("I can not find " + path.AsOrigin() + " in my db")
	}
	leaf := leaves[0]

	if !e.store.HasAttribute(leaf, attribute) {
		return "", vsserrors.NewInvalidAttributeError(leaf.AsOrigin() + " has no " + attribute + " attribute")
	}

	now := time.Now()
	if err := e.access.SubscribeAllowed(ch, leaf, now); err != nil {
		return "", err
	}

	datatype, err := e.store.DatatypeOf(leaf)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	sub := &Subscriber{
		ChannelID: ch.ConnectionID(),
		Path:      leaf,
		Attribute: attribute,
		Datatype:  datatype,
		Snapshot:  ch.Snapshot(),
	}

	key := subKey{path: leaf.Key(), attr: attribute}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byKey[key] == nil {
		e.byKey[key] = make(map[string]*Subscriber)
	}
	e.byKey[key][id] = sub
	e.byID[id] = key
	return id, nil
}

// Unsubscribe removes a single subscription by id.
func (e *Engine) Unsubscribe(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.byID[id]
	if !ok {
		return vsserrors.NewPathNotFoundError("unknown subscriptionId " + id)
	}
	delete(e.byKey[key], id)
	if len(e.byKey[key]) == 0 {
		delete(e.byKey, key)
	}
	delete(e.byID, id)
	return nil
}

// UnsubscribeAll removes every subscription belonging to channelID, on
// channel teardown.
func (e *Engine) UnsubscribeAll(channelID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, key := range e.byID {
		if bucket, ok := e.byKey[key]; ok {
			if sub, ok := bucket[id]; ok && sub.ChannelID == channelID {
				delete(bucket, id)
				if len(bucket) == 0 {
					delete(e.byKey, key)
				}
				delete(e.byID, id)
			}
		}
	}
}

// PublishChange enqueues one UpdateEvent per subscriber registered on
// the exact (path, attribute) pair. It blocks when the queue is at
// capacity, applying backpressure to the caller per spec.md §5.
func (e *Engine) PublishChange(path pathaddr.PathAddress, attribute, datatype string, value any, ts time.Time) {
	key := subKey{path: path.Key(), attr: attribute}

	e.mu.Lock()
	bucket := e.byKey[key]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.mu.Lock()
		sub, ok := e.byKey[key][id]
		e.mu.Unlock()
		if !ok {
			continue
		}
		e.queue <- UpdateEvent{
			SubscriptionID: id,
			ChannelID:      sub.ChannelID,
			Path:           path,
			Attribute:      attribute,
			Datatype:       datatype,
			Value:          value,
			Ts:             ts,
		}
	}
}

// RunInBackground launches Run on a panic-recovering goroutine.
func (e *Engine) RunInBackground() {
	goroutine.SafeGo(e.log, "subscription-dispatcher", e.Run)
}

func (e *Engine) dispatch(event UpdateEvent) {
	e.mu.Lock()
	key := subKey{path: event.Path.Key(), attr: event.Attribute}
	sub, ok := e.byKey[key][event.SubscriptionID]
	e.mu.Unlock()
	if !ok {
		return // unsubscribed before delivery
	}

	if !sub.Snapshot.ReadAllowed(event.Path, time.Now()) {
		e.log.Debugw("dropping subscription delivery: access revoked or token expired",
			"subscriptionId", event.SubscriptionID, "path", event.Path.AsSlashed())
		return
	}

	notification := notificationEnvelope{
		Action:         "subscribe",
		SubscriptionID: event.SubscriptionID,
		Ts:             event.Ts.UTC().Format(time.RFC3339Nano),
	}
	notification.Value.Dp.Ts = event.Ts.UTC().Format(time.RFC3339Nano)
	notification.Value.Dp.Value = event.Value
	notification.Value.Path = event.Path.AsOrigin()

	payload, err := json.Marshal(notification)
	if err != nil {
		e.log.Errorw("failed to marshal subscription notification", "error", err)
		return
	}

	if err := e.server.SendToConnection(event.ChannelID, payload); err != nil {
		e.log.Warnw("failed to deliver subscription notification",
			"channelId", event.ChannelID, "subscriptionId", event.SubscriptionID, "error", err)
	}

	e.pubMu.RLock()
	publishers := append([]Publisher(nil), e.publish...)
	e.pubMu.RUnlock()
	for _, p := range publishers {
		if err := p.SendPathValue(event.Path.AsSlashed(), event.Value); err != nil {
			e.log.Warnw("publisher delivery failed", "path", event.Path.AsSlashed(), "error", err)
		}
	}
}

type notificationEnvelope struct {
	Action         string `json:"action"`
	SubscriptionID string `json:"subscriptionId"`
	Ts             string `json:"ts"`
	Value          struct {
		Dp struct {
			Ts    string `json:"ts"`
			Value any    `json:"value"`
		} `json:"dp"`
		Path string `json:"path"`
	} `json:"value"`
}
