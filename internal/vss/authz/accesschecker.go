package authz

import (
	"fmt"
	"time"

	vsserrors "vssbroker/internal/shared/errors"
	"vssbroker/internal/vss/pathaddr"
	"vssbroker/internal/vss/tree"
)

// AccessChecker evaluates a channel's scope against the running tree,
// per spec.md §4.3: a concrete scope entry grants permission on that
// exact leaf only, while a wildcard entry (containing `*`) cascades to
// every leaf it expands to. A plain branch name never implicitly grants
// access to its descendants — only the `*` form does.
type AccessChecker struct {
	store *tree.TreeStore
}

// NewAccessChecker builds an AccessChecker bound to store.
func NewAccessChecker(store *tree.TreeStore) *AccessChecker {
	return &AccessChecker{store: store}
}

// ExpandScope turns a token's raw kuksa-vss scope claim (pattern string ->
// permission string) into the concrete leaf-keyed Perm map a Channel
// caches for fast per-request lookups.
//
// A wildcard pattern is expanded via TreeStore.ExpandLeaves, cascading to
// every matching leaf. A concrete (wildcard-free) pattern is granted only
// if it addresses a leaf directly: a concrete branch entry expands to
// nothing, since branch permissions do not cascade.
func (a *AccessChecker) ExpandScope(rawScope map[string]string) map[string]Perm {
	concrete := make(map[string]Perm)
	for patternStr, permStr := range rawScope {
		pattern, err := pathaddr.Parse(patternStr)
		if err != nil {
			continue
		}
		perm := ParsePerm(permStr)
		if perm == PermNone {
			continue
		}

		if pattern.HasWildcard() {
			for _, leaf := range a.store.ExpandLeaves(pattern) {
				concrete[leaf.Key()] |= perm
			}
			continue
		}

		if a.store.IsReadable(pattern) {
			concrete[pattern.Key()] |= perm
		}
	}
	return concrete
}

// ExpandScopeFromPerms re-expands a channel's already-parsed wildcard
// scope (pattern -> Perm, as cached on the Channel) against the current
// tree shape. Used to rebuild a channel's concrete-leaf cache after an
// updateVSSTree changes which leaves a wildcard pattern covers.
func (a *AccessChecker) ExpandScopeFromPerms(rawScope map[string]Perm) map[string]Perm {
	concrete := make(map[string]Perm)
	for patternStr, perm := range rawScope {
		pattern, err := pathaddr.Parse(patternStr)
		if err != nil || perm == PermNone {
			continue
		}
		if pattern.HasWildcard() {
			for _, leaf := range a.store.ExpandLeaves(pattern) {
				concrete[leaf.Key()] |= perm
			}
			continue
		}
		if a.store.IsReadable(pattern) {
			concrete[pattern.Key()] |= perm
		}
	}
	return concrete
}

func (a *AccessChecker) checkAuthorized(ch *Channel, now time.Time) error {
	if !ch.IsAuthorized() {
		return vsserrors.NewNoPermissionError("channel has not completed authorize")
	}
	if ch.TokenExpired(now) {
		return vsserrors.NewTokenExpiredErrorVSS("token exp has passed")
	}
	return nil
}

// ReadAllowed checks whether ch's scope grants read access to the exact
// leaf addressed by p. Reached through SubscribeAllowed; get requests
// go through FilterReadable instead.
func (a *AccessChecker) ReadAllowed(ch *Channel, p pathaddr.PathAddress, now time.Time) error {
	if err := a.checkAuthorized(ch, now); err != nil {
		return err
	}
	if !ch.PermissionFor(p).Has(PermRead) {
		return vsserrors.NewNoPermissionError(fmt.Sprintf("no read access to %s", p.AsOrigin()))
	}
	return nil
}

// WriteAllowed checks whether ch's scope grants write access to the
// exact leaf addressed by p.
func (a *AccessChecker) WriteAllowed(ch *Channel, p pathaddr.PathAddress, now time.Time) error {
	if err := a.checkAuthorized(ch, now); err != nil {
		return err
	}
	if !ch.PermissionFor(p).Has(PermWrite) {
		return vsserrors.NewNoPermissionError(fmt.Sprintf("no write access to %s", p.AsOrigin()))
	}
	return nil
}

// SubscribeAllowed checks whether ch's scope grants the read access
// required to subscribe to p. Identical to ReadAllowed: subscribing
// requires read, per spec.md §4.5.
func (a *AccessChecker) SubscribeAllowed(ch *Channel, p pathaddr.PathAddress, now time.Time) error {
	return a.ReadAllowed(ch, p, now)
}

// FilterReadable narrows a wildcard-expanded leaf set down to the ones
// ch's scope grants read access to. Per spec.md §4.3, a wildcard get
// request is Forbidden only when the filtered set is empty; otherwise it
// returns data for the subset that is actually readable.
func (a *AccessChecker) FilterReadable(ch *Channel, leaves []pathaddr.PathAddress, now time.Time) ([]pathaddr.PathAddress, error) {
	if err := a.checkAuthorized(ch, now); err != nil {
		return nil, err
	}
	out := make([]pathaddr.PathAddress, 0, len(leaves))
	for _, leaf := range leaves {
		if ch.PermissionFor(leaf).Has(PermRead) {
			out = append(out, leaf)
		}
	}
	if len(out) == 0 {
		return nil, vsserrors.NewNoPermissionError("no readable leaves matched the request path")
	}
	return out, nil
}
