package tree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	vsserrors "vssbroker/internal/shared/errors"
)

// rawNode mirrors the on-disk VSS node shape (spec.md §3): a single
// top-level object maps the root branch name to a node, and every node is
// either a branch (carrying children) or a leaf (carrying datatype
// metadata). Both JSON and YAML forms are accepted.
type rawNode struct {
	Type        string             `json:"type" yaml:"type"`
	Datatype    string             `json:"datatype,omitempty" yaml:"datatype,omitempty"`
	Min         *float64           `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64           `json:"max,omitempty" yaml:"max,omitempty"`
	Enum        []string           `json:"enum,omitempty" yaml:"enum,omitempty"`
	Unit        string             `json:"unit,omitempty" yaml:"unit,omitempty"`
	UUID        string             `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Children    map[string]rawNode `json:"children,omitempty" yaml:"children,omitempty"`
}

func decodeSpecFile(path string) (map[string]rawNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vsserrors.NewInvalidTreeError(fmt.Sprintf("cannot read tree spec %s: %v", path, err))
	}

	var doc map[string]rawNode
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, vsserrors.NewInvalidTreeError(fmt.Sprintf("cannot parse tree spec %s: %v", path, err))
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, vsserrors.NewInvalidTreeError(fmt.Sprintf("cannot parse tree spec %s: %v", path, err))
		}
	}
	return doc, nil
}

// buildNode converts a decoded rawNode subtree into the runtime *Node
// representation. Map key order from JSON/YAML decoding is not preserved
// by either encoding/json or yaml.v3, so children are ordered
// alphabetically; this is a deliberate, documented simplification of the
// "tree traversal order" called for by expand_leaves.
func buildNode(name string, raw rawNode) (*Node, error) {
	n := &Node{Name: name}

	switch NodeKind(raw.Type) {
	case KindBranch:
		n.Kind = KindBranch
		names := make([]string, 0, len(raw.Children))
		for childName := range raw.Children {
			names = append(names, childName)
		}
		sort.Strings(names)
		for _, childName := range names {
			child, err := buildNode(childName, raw.Children[childName])
			if err != nil {
				return nil, err
			}
			n.setChild(child)
		}
	case KindSensor, KindActuator, KindAttribute:
		n.Kind = NodeKind(raw.Type)
		n.Datatype = raw.Datatype
		n.Min = raw.Min
		n.Max = raw.Max
		n.Enum = raw.Enum
		n.Unit = raw.Unit
		n.UUID = raw.UUID
		n.Description = raw.Description
		if n.Datatype == "" {
			return nil, vsserrors.NewInvalidTreeError(fmt.Sprintf("leaf %q is missing a datatype", name))
		}
		if n.UUID == "" {
			return nil, vsserrors.NewInvalidTreeError(fmt.Sprintf("leaf %q is missing a uuid", name))
		}
	default:
		return nil, vsserrors.NewInvalidTreeError(fmt.Sprintf("node %q has unknown type %q", name, raw.Type))
	}
	return n, nil
}

// mergeNode folds overlay into existing in place, following the rules from
// spec.md §3: branches union their children (recursing into shared ones),
// leaves are replaced wholesale by the overlay's metadata. Mutating in
// place (rather than returning a replacement node) keeps every existing
// *Node pointer in the tree stable, which matters for UpdateMetadata: the
// node TreeStore.resolveNode already handed back stays valid after merge.
func mergeNode(existing, overlay *Node) (*Node, error) {
	if existing == nil {
		return overlay, nil
	}
	if overlay.Kind == KindBranch && existing.Kind == KindBranch {
		for _, child := range overlay.Children() {
			existingChild, _ := existing.Child(child.Name)
			mergedChild, err := mergeNode(existingChild, child)
			if err != nil {
				return nil, err
			}
			existing.setChild(mergedChild)
		}
		return existing, nil
	}
	existing.Kind = overlay.Kind
	existing.Datatype = overlay.Datatype
	existing.Min = overlay.Min
	existing.Max = overlay.Max
	existing.Enum = overlay.Enum
	existing.Unit = overlay.Unit
	existing.UUID = overlay.UUID
	existing.Description = overlay.Description
	return existing, nil
}

// loadTree reads the primary spec file and applies every overlay file (in
// lexicographic order) on top of it, per spec.md §3's lifecycle.
func loadTree(specPath string, overlayPaths []string) (*Node, map[string]*Node, error) {
	rootDoc, err := decodeSpecFile(specPath)
	if err != nil {
		return nil, nil, err
	}
	root, err := buildRoot(rootDoc)
	if err != nil {
		return nil, nil, err
	}

	sorted := append([]string(nil), overlayPaths...)
	sort.Strings(sorted)
	for _, overlayPath := range sorted {
		overlayDoc, err := decodeSpecFile(overlayPath)
		if err != nil {
			return nil, nil, err
		}
		overlayRoot, err := buildRoot(overlayDoc)
		if err != nil {
			return nil, nil, err
		}
		merged, err := mergeNode(root, overlayRoot)
		if err != nil {
			return nil, nil, err
		}
		root = merged
	}

	uuidIndex := make(map[string]*Node)
	seenPaths := make(map[string]string)
	if err := indexAndValidate(root, uuidIndex, seenPaths, root.Name); err != nil {
		return nil, nil, err
	}

	return root, uuidIndex, nil
}

func buildRoot(doc map[string]rawNode) (*Node, error) {
	if len(doc) != 1 {
		return nil, vsserrors.NewInvalidTreeError("tree spec must have exactly one top-level branch")
	}
	for name, raw := range doc {
		return buildNode(name, raw)
	}
	return nil, vsserrors.NewInvalidTreeError("tree spec is empty")
}

func indexAndValidate(n *Node, uuidIndex map[string]*Node, seenUUIDPaths map[string]string, path string) error {
	if n.Kind == KindBranch {
		for _, child := range n.Children() {
			if err := indexAndValidate(child, uuidIndex, seenUUIDPaths, path+"."+child.Name); err != nil {
				return err
			}
		}
		return nil
	}
	if prior, exists := seenUUIDPaths[n.UUID]; exists {
		return vsserrors.NewInvalidTreeError(fmt.Sprintf("uuid %q is shared by %s and %s", n.UUID, prior, path))
	}
	seenUUIDPaths[n.UUID] = path
	uuidIndex[n.UUID] = n
	return nil
}

// decodeRawDoc converts a generic JSON-decoded document (as produced by a
// request body's updateVSSTree payload) into the rawNode shape loadTree
// works with.
func decodeRawDoc(doc map[string]any) (map[string]rawNode, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, vsserrors.NewInvalidTreeError("cannot encode tree update: " + err.Error())
	}
	var out map[string]rawNode
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, vsserrors.NewInvalidTreeError("cannot decode tree update: " + err.Error())
	}
	return out, nil
}

// decodeRawNode converts a generic JSON-decoded single-node document (as
// produced by an updateMetaData payload) into the rawNode shape.
func decodeRawNode(doc map[string]any) (rawNode, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return rawNode{}, vsserrors.NewInvalidTreeError("cannot encode metadata update: " + err.Error())
	}
	var out rawNode
	if err := json.Unmarshal(data, &out); err != nil {
		return rawNode{}, vsserrors.NewInvalidTreeError("cannot decode metadata update: " + err.Error())
	}
	return out, nil
}

// ListOverlayFiles returns every .json/.yaml/.yml file directly inside dir,
// sorted lexicographically, for use as TreeStore's overlayPaths. A missing
// directory yields an empty list rather than an error, since overlays are
// optional.
func ListOverlayFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vsserrors.NewInvalidTreeError("cannot read overlay directory: " + err.Error())
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
