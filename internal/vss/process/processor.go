package process

import (
	"encoding/json"
	"time"

	"vssbroker/internal/shared/clock"
	vsserrors "vssbroker/internal/shared/errors"
	"vssbroker/internal/shared/logger"
	"vssbroker/internal/vss/authz"
	"vssbroker/internal/vss/pathaddr"
	"vssbroker/internal/vss/subscribe"
	"vssbroker/internal/vss/tree"
)

// Processor is RequestProcessor: action dispatch, error envelope
// construction, and composition of TreeStore/authz/SubscriptionEngine
// described in spec.md §4.6.
type Processor struct {
	store     *tree.TreeStore
	access    *authz.AccessChecker
	verifier  *authz.TokenVerifier
	registry  *authz.Registry
	engine    *subscribe.Engine
	validator *RequestValidator
	log       logger.Interface
}

// New builds a Processor wired to its collaborators.
func New(store *tree.TreeStore, access *authz.AccessChecker, verifier *authz.TokenVerifier, registry *authz.Registry, engine *subscribe.Engine, log logger.Interface) *Processor {
	return &Processor{
		store:     store,
		access:    access,
		verifier:  verifier,
		registry:  registry,
		engine:    engine,
		validator: NewRequestValidator(),
		log:       log,
	}
}

func nowStamp() string { return clock.Stamp() }

// ProcessQuery parses rawRequest, dispatches it against ch, and returns
// the JSON reply (success or error envelope). It never panics or lets
// an error escape unencoded: every failure is translated to the uniform
// error envelope at this boundary.
func (p *Processor) ProcessQuery(rawRequest []byte, ch *authz.Channel) []byte {
	var req Request
	if err := json.Unmarshal(rawRequest, &req); err != nil {
		return p.errorEnvelope("", TryExtractRequestID(rawRequest), vsserrors.NewMalformedRequestError("invalid JSON: "+err.Error()))
	}

	if err := p.validator.Validate(req); err != nil {
		return p.errorEnvelope(req.Action, req.RequestID, err)
	}

	reply, err := p.dispatch(req, ch)
	if err != nil {
		return p.errorEnvelope(req.Action, req.RequestID, err)
	}
	return reply
}

func (p *Processor) dispatch(req Request, ch *authz.Channel) ([]byte, error) {
	switch req.Action {
	case ActionAuthorize:
		return p.handleAuthorize(req, ch)
	case ActionGet:
		return p.handleGet(req, ch)
	case ActionSet:
		return p.handleSet(req, ch)
	case ActionSubscribe:
		return p.handleSubscribe(req, ch)
	case ActionUnsubscribe:
		return p.handleUnsubscribe(req, ch)
	case ActionGetMetaData:
		return p.handleGetMetaData(req)
	case ActionUpdateMetaData:
		return p.handleUpdateMetaData(req, ch)
	case ActionUpdateVSSTree:
		return p.handleUpdateVSSTree(req, ch)
	default:
		return nil, vsserrors.NewSchemaError("unknown action " + req.Action)
	}
}

func (p *Processor) handleAuthorize(req Request, ch *authz.Channel) ([]byte, error) {
	claims, err := p.verifier.Verify(req.Tokens)
	if err != nil {
		return nil, err
	}

	wildcardScope := make(map[string]authz.Perm, len(claims.Scope))
	for pattern, permStr := range claims.Scope {
		wildcardScope[pattern] = authz.ParsePerm(permStr)
	}
	concrete := p.access.ExpandScope(claims.Scope)

	var expiry time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	ch.Authorize(expiry, claims.ModifyTree, wildcardScope, concrete)
	p.registry.Register(ch)

	reply := authorizeReply{Action: req.Action, RequestID: req.RequestID, TTL: expiry.Unix(), Ts: nowStamp()}
	return json.Marshal(reply)
}

func (p *Processor) handleGet(req Request, ch *authz.Channel) ([]byte, error) {
	pattern, err := pathaddr.Parse(req.Path)
	if err != nil {
		return nil, err
	}
	attr := req.attributeOrDefault()

	leaves := p.store.ExpandLeaves(pattern)
	if len(leaves) == 0 {
		return nil, vsserrors.NewPathNotFoundError("I can not find " + req.Path + " in my db")
	}

	readable, err := p.access.FilterReadable(ch, leaves, time.Now())
	if err != nil {
		return nil, err
	}

	entries := make([]pathDataWire, 0, len(readable))
	for _, leaf := range readable {
		dp, err := p.store.GetSignal(leaf, attr, req.AsString)
		if err != nil {
			continue // attribute unset on this particular leaf; skip, matching multi-leaf partial semantics
		}
		echo := leaf.AsDotted()
		if !pattern.IsGen1Origin() {
			echo = leaf.AsSlashed()
		}
		entries = append(entries, pathDataWire{
			Path: echo,
			Dp:   dataPointWire{Ts: dp.Ts.UTC().Format(time.RFC3339Nano), Value: dp.Value},
		})
	}
	if len(entries) == 0 {
		return nil, vsserrors.NewUnavailableDataError(req.Path + " has no value yet")
	}

	if len(entries) == 1 {
		reply := getReplySingle{Action: req.Action, RequestID: req.RequestID, Ts: nowStamp(), Data: entries[0]}
		return json.Marshal(reply)
	}
	reply := getReplyMulti{Action: req.Action, RequestID: req.RequestID, Ts: nowStamp(), Data: entries}
	return json.Marshal(reply)
}

func (p *Processor) handleSet(req Request, ch *authz.Channel) ([]byte, error) {
	path, err := pathaddr.Parse(req.Path)
	if err != nil {
		return nil, err
	}
	if path.HasWildcard() {
		return nil, vsserrors.NewMalformedRequestError("set does not support wildcard paths")
	}
	attr := req.attributeOrDefault()

	if err := p.access.WriteAllowed(ch, path, time.Now()); err != nil {
		return nil, err
	}

	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		return nil, vsserrors.NewMalformedRequestError("invalid value: " + err.Error())
	}

	dp, err := p.store.SetSignal(path, attr, value)
	if err != nil {
		return nil, err
	}

	datatype, _ := p.store.DatatypeOf(path)
	p.engine.PublishChange(path, attr, datatype, dp.Value, dp.Ts)

	reply := setReply{Action: req.Action, RequestID: req.RequestID, Ts: nowStamp()}
	return json.Marshal(reply)
}

func (p *Processor) handleSubscribe(req Request, ch *authz.Channel) ([]byte, error) {
	path, err := pathaddr.Parse(req.Path)
	if err != nil {
		return nil, err
	}
	id, err := p.engine.Subscribe(ch, path, req.attributeOrDefault())
	if err != nil {
		return nil, err
	}
	reply := subscribeReply{Action: req.Action, RequestID: req.RequestID, Ts: nowStamp(), SubscriptionID: id}
	return json.Marshal(reply)
}

func (p *Processor) handleUnsubscribe(req Request, ch *authz.Channel) ([]byte, error) {
	if err := p.engine.Unsubscribe(req.SubscriptionID); err != nil {
		return nil, err
	}
	reply := subscribeReply{Action: req.Action, RequestID: req.RequestID, Ts: nowStamp(), SubscriptionID: req.SubscriptionID}
	return json.Marshal(reply)
}

func (p *Processor) handleGetMetaData(req Request) ([]byte, error) {
	path, err := pathaddr.Parse(req.Path)
	if err != nil {
		return nil, err
	}
	meta, err := p.store.GetMetadata(path)
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, vsserrors.NewPathNotFoundError("I can not find " + req.Path + " in my db")
	}
	reply := getMetaDataReply{Action: req.Action, RequestID: req.RequestID, Ts: nowStamp(), Metadata: meta}
	return json.Marshal(reply)
}

func (p *Processor) handleUpdateMetaData(req Request, ch *authz.Channel) ([]byte, error) {
	path, err := pathaddr.Parse(req.Path)
	if err != nil {
		return nil, err
	}
	var newMeta map[string]any
	if err := json.Unmarshal(req.Value, &newMeta); err != nil {
		return nil, vsserrors.NewMalformedRequestError("invalid value: " + err.Error())
	}
	if err := p.store.UpdateMetadata(ch, path, newMeta); err != nil {
		return nil, err
	}
	p.registry.InvalidateAll(p.access)

	reply := plainReply{Action: req.Action, RequestID: req.RequestID, Ts: nowStamp()}
	return json.Marshal(reply)
}

func (p *Processor) handleUpdateVSSTree(req Request, ch *authz.Channel) ([]byte, error) {
	var newTree map[string]any
	if err := json.Unmarshal(req.Value, &newTree); err != nil {
		return nil, vsserrors.NewMalformedRequestError("invalid value: " + err.Error())
	}
	if err := p.store.UpdateTree(ch, newTree); err != nil {
		return nil, err
	}
	p.registry.InvalidateAll(p.access)

	reply := plainReply{Action: req.Action, RequestID: req.RequestID, Ts: nowStamp()}
	return json.Marshal(reply)
}

func (p *Processor) errorEnvelope(action, requestID string, err error) []byte {
	vssErr, ok := vsserrors.AsVSSError(err)
	if !ok {
		p.log.Errorw("unmapped error surfaced to request processor", "error", err)
		vssErr = vsserrors.NewVSSInternalError(err.Error())
	}
	envelope := errorEnvelope{
		Action:    action,
		RequestID: requestID,
		Ts:        nowStamp(),
		Error: errorWire{
			Number:  vssErr.Number,
			Reason:  vssErr.Reason,
			Message: vssErr.Message,
		},
	}
	data, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		p.log.Errorw("failed to marshal error envelope", "error", marshalErr)
		return []byte(`{"error":{"number":"401","reason":"Unknown error","message":"internal error"}}`)
	}
	return data
}
