// Package pathaddr implements PathAddress, the three equivalent
// representations of a VSS tree path (dotted, slashed, JSON-query) used
// throughout the broker to address branches and leaves.
package pathaddr

import (
	"regexp"
	"strconv"
	"strings"

	vsserrors "vssbroker/internal/shared/errors"
)

// Wildcard is the single path segment that matches exactly one branch at
// its depth.
const Wildcard = "*"

// PathAddress is a VSS tree path carried in its slashed, dotted and
// JSON-query forms, plus a flag recording which form the client used so
// responses can echo it back. Equality and hashing are defined on the
// slashed form: two PathAddresses built from different representations of
// the same path compare equal regardless of gen1Origin.
type PathAddress struct {
	slashed    string
	dotted     string
	jsonQuery  string
	gen1Origin bool
}

var jsonTokenPattern = regexp.MustCompile(`\['([^']*)'\]|\[\*\]`)

func segmentsFromDotted(s string) []string {
	return strings.Split(s, ".")
}

func segmentsFromSlashed(s string) []string {
	return strings.Split(s, "/")
}

func segmentsFromJSONQuery(s string) []string {
	matches := jsonTokenPattern.FindAllStringSubmatch(s, -1)
	segs := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[0] == "[*]" {
			segs = append(segs, Wildcard)
			continue
		}
		if m[1] == "children" {
			continue
		}
		segs = append(segs, m[1])
	}
	return segs
}

func joinJSONQuery(segs []string) string {
	var b strings.Builder
	b.WriteByte('$')
	for i, seg := range segs {
		if i > 0 {
			b.WriteString("['children']")
		}
		if seg == Wildcard {
			b.WriteString("[*]")
		} else {
			b.WriteString("['")
			b.WriteString(seg)
			b.WriteString("']")
		}
	}
	return b.String()
}

func fromSegments(segs []string, gen1Origin bool) PathAddress {
	return PathAddress{
		slashed:    strings.Join(segs, "/"),
		dotted:     strings.Join(segs, "."),
		jsonQuery:  joinJSONQuery(segs),
		gen1Origin: gen1Origin,
	}
}

// FromDotted builds a PathAddress from a gen1 ("Vehicle.Speed") path.
func FromDotted(s string) PathAddress {
	return fromSegments(segmentsFromDotted(s), true)
}

// FromSlashed builds a PathAddress from a gen2 ("Vehicle/Speed") path.
func FromSlashed(s string) PathAddress {
	return fromSegments(segmentsFromSlashed(s), false)
}

// FromJSONQuery builds a PathAddress from a JSON-query
// ("$['Vehicle']['children']['Speed']") path.
func FromJSONQuery(s string) PathAddress {
	return fromSegments(segmentsFromJSONQuery(s), false)
}

// FromAuto decides the representation from the input's shape: a leading
// `$` is JSON-query, a `/` anywhere is slashed, otherwise
// dotted. An empty string is treated as slashed (gen2, not gen1-origin),
// matching the reference implementation.
func FromAuto(s string) PathAddress {
	switch {
	case strings.HasPrefix(s, "$"):
		return FromJSONQuery(s)
	case s == "":
		return FromSlashed(s)
	case strings.Contains(s, "/"):
		return FromSlashed(s)
	default:
		return FromDotted(s)
	}
}

// Parse is like FromAuto but rejects paths with an empty segment (other
// than the empty path itself) or a `*` embedded inside a longer token,
// returning an InvalidValue error.
func Parse(s string) (PathAddress, error) {
	p := FromAuto(s)
	segs := p.Segments()
	for i, seg := range segs {
		if seg == "" && len(segs) > 1 {
			return PathAddress{}, vsserrors.NewInvalidValueError("path segment " + strconv.Itoa(i) + " is empty")
		}
		if strings.Contains(seg, Wildcard) && seg != Wildcard {
			return PathAddress{}, vsserrors.NewInvalidValueError("wildcard must occupy an entire path segment: " + seg)
		}
	}
	return p, nil
}

// AsDotted returns the gen1 ("Vehicle.Speed") form.
func (p PathAddress) AsDotted() string { return p.dotted }

// AsSlashed returns the gen2 ("Vehicle/Speed") form.
func (p PathAddress) AsSlashed() string { return p.slashed }

// AsJSONQuery returns the JSON-query ("$['Vehicle']['children']['Speed']")
// form.
func (p PathAddress) AsJSONQuery() string { return p.jsonQuery }

// IsGen1Origin reports whether this PathAddress was constructed from a
// dotted path.
func (p PathAddress) IsGen1Origin() bool { return p.gen1Origin }

// AsOrigin returns the dotted form for a gen1-origin path and the slashed
// form otherwise (a JSON-query input is echoed in slashed form), so a
// response can echo the client's own addressing style.
func (p PathAddress) AsOrigin() string {
	if p.gen1Origin {
		return p.dotted
	}
	return p.slashed
}

// Segments returns the path split into its individual components.
func (p PathAddress) Segments() []string {
	if p.slashed == "" {
		return []string{""}
	}
	return strings.Split(p.slashed, "/")
}

// IsConcrete reports whether the path contains no wildcard segment.
func (p PathAddress) IsConcrete() bool {
	for _, seg := range p.Segments() {
		if seg == Wildcard {
			return false
		}
	}
	return true
}

// Equals compares two PathAddresses on their slashed form, ignoring
// gen1Origin.
func (p PathAddress) Equals(other PathAddress) bool {
	return p.slashed == other.slashed
}

// Key returns a value suitable for use as a map key, keyed on the slashed
// form only (gen1Origin does not participate in identity).
func (p PathAddress) Key() string { return p.slashed }

// MatchesPattern reports whether p (assumed concrete) satisfies pattern,
// under segment-wise `*` semantics: equal segment count, and every
// non-wildcard pattern segment equals the corresponding p segment.
func (p PathAddress) MatchesPattern(pattern PathAddress) bool {
	pSegs, patSegs := p.Segments(), pattern.Segments()
	if len(pSegs) != len(patSegs) {
		return false
	}
	for i, patSeg := range patSegs {
		if patSeg == Wildcard {
			continue
		}
		if patSeg != pSegs[i] {
			return false
		}
	}
	return true
}

// HasWildcard reports whether the path contains at least one `*` segment.
func (p PathAddress) HasWildcard() bool {
	return !p.IsConcrete()
}

// String implements fmt.Stringer, returning the slashed canonical form.
func (p PathAddress) String() string { return p.slashed }
