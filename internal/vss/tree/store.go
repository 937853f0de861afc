package tree

import (
	"fmt"
	"sync"
	"time"

	"vssbroker/internal/shared/errors"
	"vssbroker/internal/vss/pathaddr"
)

// DataPoint is a timestamped value read from or written to a leaf.
type DataPoint struct {
	Ts    time.Time
	Value any
}

// Metadata is the subtree metadata projection returned by get_metadata: a
// JSON-serializable tree of branch/leaf descriptions with no values.
type Metadata map[string]any

// TreeStore is the in-memory VSS catalog. All public methods are safe for
// concurrent use: reads take the read lock and may proceed in parallel,
// writes (set_signal, update_tree, update_metadata) take the write lock
// for their critical section only.
type TreeStore struct {
	mu        sync.RWMutex
	root      *Node
	uuidIndex map[string]*Node
}

// New loads a TreeStore from the primary spec file, then applies every
// overlay file in lexicographic order.
func New(specPath string, overlayPaths []string) (*TreeStore, error) {
	root, uuidIndex, err := loadTree(specPath, overlayPaths)
	if err != nil {
		return nil, err
	}
	return &TreeStore{root: root, uuidIndex: uuidIndex}, nil
}

// resolveNode walks the concrete (wildcard-free) path's segments from the
// root and returns the node, or nil if any segment is missing.
func (t *TreeStore) resolveNode(p pathaddr.PathAddress) *Node {
	segs := p.Segments()
	if len(segs) == 0 || segs[0] != t.root.Name {
		return nil
	}
	n := t.root
	for _, seg := range segs[1:] {
		child, ok := n.Child(seg)
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

// Exists reports whether path addresses a node in the tree (branch or
// leaf). path must be concrete.
func (t *TreeStore) Exists(p pathaddr.PathAddress) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolveNode(p) != nil
}

// IsReadable reports whether path addresses a leaf that can be read.
// Whether a given *channel* is permitted to read it is AccessChecker's
// concern, not the tree's.
func (t *TreeStore) IsReadable(p pathaddr.PathAddress) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.resolveNode(p)
	return n != nil && n.Kind.IsLeaf()
}

// IsWritable reports whether path addresses a leaf that can be written.
func (t *TreeStore) IsWritable(p pathaddr.PathAddress) bool {
	return t.IsReadable(p)
}

// HasAttribute reports whether path addresses a leaf carrying the named
// attribute slot ("value" or "targetValue").
func (t *TreeStore) HasAttribute(p pathaddr.PathAddress, attr string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.resolveNode(p)
	return n != nil && n.HasAttribute(attr)
}

// DatatypeOf returns the declared datatype of the leaf at path.
func (t *TreeStore) DatatypeOf(p pathaddr.PathAddress) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.resolveNode(p)
	if n == nil || n.Kind == KindBranch {
		return "", errors.NewPathNotFoundError(fmt.Sprintf("I can not find %s in my db", p.AsOrigin()))
	}
	return n.Datatype, nil
}

// ExpandLeaves resolves a (possibly wildcard) pattern into every matching
// concrete leaf, in tree traversal order with duplicates removed, per
// spec.md §4.2. A leading `*` segment matches the root branch.
func (t *TreeStore) ExpandLeaves(pattern pathaddr.PathAddress) []pathaddr.PathAddress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	segs := pattern.Segments()
	if len(segs) == 0 || (segs[0] != t.root.Name && segs[0] != pathaddr.Wildcard) {
		return nil
	}

	var out []pathaddr.PathAddress
	seen := make(map[string]bool)
	var walk func(n *Node, consumed []string, remaining []string)
	walk = func(n *Node, consumed []string, remaining []string) {
		if len(remaining) == 0 {
			if n.Kind == KindBranch {
				collectLeaves(n, consumed, &out, seen)
				return
			}
			addLeaf(consumed, &out, seen)
			return
		}
		seg, rest := remaining[0], remaining[1:]
		if seg == pathaddr.Wildcard {
			for _, child := range n.Children() {
				walk(child, append(append([]string(nil), consumed...), child.Name), rest)
			}
			return
		}
		child, ok := n.Child(seg)
		if !ok {
			return
		}
		walk(child, append(append([]string(nil), consumed...), seg), rest)
	}
	walk(t.root, []string{t.root.Name}, segs[1:])
	return out
}

func collectLeaves(n *Node, prefix []string, out *[]pathaddr.PathAddress, seen map[string]bool) {
	if n.Kind != KindBranch {
		addLeaf(prefix, out, seen)
		return
	}
	for _, child := range n.Children() {
		collectLeaves(child, append(append([]string(nil), prefix...), child.Name), out, seen)
	}
}

func addLeaf(segs []string, out *[]pathaddr.PathAddress, seen map[string]bool) {
	p := pathaddr.FromDotted(joinDots(segs))
	key := p.Key()
	if seen[key] {
		return
	}
	seen[key] = true
	*out = append(*out, p)
}

func joinDots(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}

// GetSignal reads a leaf's attribute datapoint. If asString is true the
// value is rendered as a string regardless of its native representation.
func (t *TreeStore) GetSignal(p pathaddr.PathAddress, attr string, asString bool) (DataPoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.resolveNode(p)
	if n == nil || n.Kind == KindBranch {
		return DataPoint{}, errors.NewPathNotFoundError(fmt.Sprintf("I can not find %s in my db", p.AsOrigin()))
	}
	if !n.HasAttribute(attr) {
		return DataPoint{}, errors.NewInvalidAttributeError(fmt.Sprintf("%s has no %s attribute", p.AsOrigin(), attr))
	}
	slot := n.slot(attr)
	if !slot.Set {
		return DataPoint{}, errors.NewUnavailableDataError(fmt.Sprintf("%s has no value yet", p.AsOrigin()))
	}
	value := slot.Value
	if asString {
		value = stringifyValue(value)
	}
	return DataPoint{Ts: slot.Ts, Value: value}, nil
}

// SetSignal validates and stores a new value for a leaf's attribute,
// stamping the current time, per spec.md §4.2's type/range/enum rules.
func (t *TreeStore) SetSignal(p pathaddr.PathAddress, attr string, value any) (DataPoint, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.resolveNode(p)
	if n == nil || n.Kind == KindBranch {
		return DataPoint{}, errors.NewPathNotFoundError(fmt.Sprintf("I can not find %s in my db", p.AsOrigin()))
	}
	if !n.HasAttribute(attr) {
		return DataPoint{}, errors.NewInvalidAttributeError(fmt.Sprintf("%s has no %s attribute", p.AsOrigin(), attr))
	}

	coerced, err := coerceAndValidate(n, value)
	if err != nil {
		return DataPoint{}, err
	}

	slot := n.slot(attr)
	slot.Value = coerced
	slot.Ts = time.Now().UTC()
	slot.Set = true
	return DataPoint{Ts: slot.Ts, Value: coerced}, nil
}

// GetMetadata projects the subtree rooted at path (metadata only, no
// values), wrapped in its ancestor chain so the client can locate it.
func (t *TreeStore) GetMetadata(p pathaddr.PathAddress) (Metadata, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.resolveNode(p)
	if n == nil {
		return nil, errors.NewPathNotFoundError(fmt.Sprintf("I can not find %s in my db", p.AsOrigin()))
	}

	inner := nodeMetadata(n)
	segs := p.Segments()
	for i := len(segs) - 1; i > 0; i-- {
		inner = Metadata{segs[i-1]: map[string]any{"type": "branch", "children": inner}}
	}
	return inner, nil
}

func nodeMetadata(n *Node) Metadata {
	return Metadata{n.Name: nodeMetaContent(n)}
}

// nodeMetaContent builds a node's metadata object (the value side of its
// name->content entry), recursing into children without re-wrapping them
// in their own name key a second time.
func nodeMetaContent(n *Node) map[string]any {
	if n.Kind == KindBranch {
		children := make(map[string]any, len(n.children))
		for _, child := range n.Children() {
			children[child.Name] = nodeMetaContent(child)
		}
		return map[string]any{"type": "branch", "children": children}
	}
	meta := map[string]any{
		"type":     string(n.Kind),
		"datatype": n.Datatype,
		"uuid":     n.UUID,
	}
	if n.Min != nil {
		meta["min"] = *n.Min
	}
	if n.Max != nil {
		meta["max"] = *n.Max
	}
	if len(n.Enum) > 0 {
		meta["enum"] = n.Enum
	}
	if n.Unit != "" {
		meta["unit"] = n.Unit
	}
	if n.Description != "" {
		meta["description"] = n.Description
	}
	return meta
}

// ModifyAuthority is implemented by the caller's Channel to assert the
// modifyTree claim required by UpdateTree/UpdateMetadata, without this
// package depending on the authz package.
type ModifyAuthority interface {
	CanModifyTree() bool
}

// UpdateTree additively merges newTreeDoc (a spec-file-shaped document)
// into the running tree. Requires the caller's channel to carry
// modifyTree.
func (t *TreeStore) UpdateTree(caller ModifyAuthority, newTreeDoc map[string]any) error {
	if !caller.CanModifyTree() {
		return errors.NewNoPermissionError("updateVSSTree requires modifyTree")
	}

	raw, err := decodeRawDoc(newTreeDoc)
	if err != nil {
		return err
	}
	overlayRoot, err := buildRoot(raw)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	merged, err := mergeNode(t.root, overlayRoot)
	if err != nil {
		return err
	}
	uuidIndex := make(map[string]*Node)
	if err := indexAndValidate(merged, uuidIndex, make(map[string]string), merged.Name); err != nil {
		return err
	}
	t.root = merged
	t.uuidIndex = uuidIndex
	return nil
}

// UpdateMetadata merges newMeta into the single leaf/branch addressed by
// path, following mergeNode: a branch unions its children, while a leaf's
// metadata is replaced as a whole, so newMeta must be a complete node
// (type, datatype and uuid included). Requires modifyTree.
func (t *TreeStore) UpdateMetadata(caller ModifyAuthority, p pathaddr.PathAddress, newMeta map[string]any) error {
	if !caller.CanModifyTree() {
		return errors.NewNoPermissionError("updateMetaData requires modifyTree")
	}

	raw, err := decodeRawNode(newMeta)
	if err != nil {
		return err
	}
	segs := p.Segments()
	overlayNode, err := buildNode(segs[len(segs)-1], raw)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	existing := t.resolveNode(p)
	if existing == nil {
		return errors.NewPathNotFoundError(fmt.Sprintf("I can not find %s in my db", p.AsOrigin()))
	}
	merged, err := mergeNode(existing, overlayNode)
	if err != nil {
		return err
	}
	if existing == t.root {
		t.root = merged
	}
	uuidIndex := make(map[string]*Node)
	if err := indexAndValidate(t.root, uuidIndex, make(map[string]string), t.root.Name); err != nil {
		return err
	}
	t.uuidIndex = uuidIndex
	return nil
}
