// Package path implements typed field paths with wildcard matching.
package path

import (
	"fmt"
	"strconv"
	"strings"
)

// Wildcard is the reserved segment matching any index of a repeated field.
const Wildcard Segment = "*"

// Segment is a single step in a path: a field name, a concrete
// decimal index, or the Wildcard.
type Segment string

// IsWildcard reports whether the segment is the repeated-field wildcard.
func (s Segment) IsWildcard() bool { return s == Wildcard }

// IsIndex reports whether the segment is a concrete decimal index.
func (s Segment) IsIndex() bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// matches reports segment equality where a wildcard on either side
// matches a concrete index on the other.
func (s Segment) matches(o Segment) bool {
	if s == o {
		return true
	}
	if s.IsWildcard() && o.IsIndex() {
		return true
	}
	if o.IsWildcard() && s.IsIndex() {
		return true
	}
	return false
}

// Path is an ordered sequence of segments addressing a field or value.
type Path []Segment

// New builds a path from plain string segments.
func New(segments ...string) Path {
	p := make(Path, len(segments))
	for i, s := range segments {
		p[i] = Segment(s)
	}
	return p
}

// Index returns a concrete index segment.
func Index(i int) Segment { return Segment(strconv.Itoa(i)) }

// Equal reports segment-wise equality, treating a wildcard on either
// side as matching a concrete index on the other.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if !p[i].matches(o[i]) {
			return false
		}
	}
	return true
}

// IsParentOf reports whether p is a strict, matching prefix of child.
func (p Path) IsParentOf(child Path) bool {
	if len(p) >= len(child) {
		return false
	}
	return p.Equal(child[:len(p)])
}

// Matches reports whether the concrete path matches this pattern:
// every non-wildcard segment identical, every wildcard aligned with a
// concrete index. Reflexive for fully concrete paths.
func (p Path) Matches(concrete Path) bool {
	if len(p) != len(concrete) {
		return false
	}
	for i := range p {
		if p[i].IsWildcard() {
			if !concrete[i].IsIndex() {
				return false
			}
			continue
		}
		if p[i] != concrete[i] {
			return false
		}
	}
	return true
}

// Child returns a new path extended by one segment.
func (p Path) Child(s Segment) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = s
	return out
}

// Concat returns a new path extended by another path.
func (p Path) Concat(o Path) Path {
	out := make(Path, 0, len(p)+len(o))
	out = append(out, p...)
	return append(out, o...)
}

// HasWildcard reports whether any segment is the wildcard.
func (p Path) HasWildcard() bool {
	for _, s := range p {
		if s.IsWildcard() {
			return true
		}
	}
	return false
}

// String serializes the path as dot-joined segments. Segments
// containing a literal dot or quote are double-quoted.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		if strings.ContainsAny(string(s), `."`) {
			b.WriteString(strconv.Quote(string(s)))
		} else {
			b.WriteString(string(s))
		}
	}
	return b.String()
}

// Parse deserializes a dot-joined path, splitting on unquoted dots
// only. Parse(p.String()) == p for all valid paths.
func Parse(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}
	var p Path
	i := 0
	for i < len(s) {
		if s[i] == '"' {
			end := i + 1
			for end < len(s) {
				if s[end] == '\\' {
					end += 2
					continue
				}
				if s[end] == '"' {
					break
				}
				end++
			}
			if end >= len(s) {
				return nil, fmt.Errorf("unterminated quote in path %q", s)
			}
			seg, err := strconv.Unquote(s[i : end+1])
			if err != nil {
				return nil, fmt.Errorf("invalid quoted segment in path %q: %w", s, err)
			}
			p = append(p, Segment(seg))
			i = end + 1
			if i < len(s) {
				if s[i] != '.' {
					return nil, fmt.Errorf("expected %q after quoted segment in path %q", ".", s)
				}
				i++
				if i == len(s) {
					return nil, fmt.Errorf("trailing dot in path %q", s)
				}
			}
			continue
		}

		end := strings.IndexByte(s[i:], '.')
		if end < 0 {
			end = len(s)
		} else {
			end += i
		}
		if end == i {
			return nil, fmt.Errorf("empty segment in path %q", s)
		}
		p = append(p, Segment(s[i:end]))
		i = end
		if i < len(s) {
			i++ // skip dot
			if i == len(s) {
				return nil, fmt.Errorf("trailing dot in path %q", s)
			}
		}
	}
	return p, nil
}

// MustParse parses a path or panics. For tests and static paths.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}
