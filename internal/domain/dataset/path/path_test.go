package path

import "testing"

func TestEqual_WildcardSymmetric(t *testing.T) {
	a := New("emails", "*", "value")
	b := New("emails", "3", "value")

	if !a.Equal(b) {
		t.Error("wildcard should match concrete index")
	}
	if !b.Equal(a) {
		t.Error("equality must be symmetric")
	}
	if a.Equal(New("emails", "x", "value")) {
		t.Error("wildcard must not match a non-index segment")
	}
	if a.Equal(New("emails", "3")) {
		t.Error("paths of different length are never equal")
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		pattern  Path
		concrete Path
		want     bool
	}{
		{"reflexive concrete", New("a", "b"), New("a", "b"), true},
		{"wildcard vs index", New("a", "*", "b"), New("a", "3", "b"), true},
		{"wildcard vs name", New("a", "*", "b"), New("a", "x", "b"), false},
		{"length mismatch", New("a", "*", "b"), New("a", "b"), false},
		{"literal mismatch", New("a", "*", "b"), New("a", "3", "c"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.Matches(tt.concrete); got != tt.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tt.pattern, tt.concrete, got, tt.want)
			}
		})
	}
}

func TestIsParentOf(t *testing.T) {
	parent := New("comments", "*")
	child := New("comments", "2", "text")

	if !parent.IsParentOf(child) {
		t.Error("expected parent relation through wildcard")
	}
	if parent.IsParentOf(New("comments", "2")) {
		t.Error("equal-length path is not a strict parent")
	}
	if New("other").IsParentOf(child) {
		t.Error("unrelated path must not be a parent")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	paths := []Path{
		New("text"),
		New("text", "pii", "emails", "*", "value"),
		New("a.b", "c"),
		New(`with"quote`, "x"),
		New("123", "*"),
	}
	for _, p := range paths {
		got, err := Parse(p.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", p.String(), err)
		}
		if len(got) != len(p) {
			t.Fatalf("round trip of %v produced %v", p, got)
		}
		for i := range p {
			if got[i] != p[i] {
				t.Errorf("round trip of %v produced %v", p, got)
			}
		}
	}
}

func TestParse_QuotedDots(t *testing.T) {
	p, err := Parse(`a."b.c".d`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := New("a", "b.c", "d")
	if !p.Equal(want) {
		t.Errorf("got %v, want %v", p, want)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "a..b", ".a", "a.", `a."b`, `"a.b".`} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestChildAndConcat_DoNotAlias(t *testing.T) {
	base := New("a", "b")
	c1 := base.Child("c")
	c2 := base.Child("d")
	if c1[2] != "c" || c2[2] != "d" {
		t.Error("Child must not share backing storage")
	}

	cat := New("a").Concat(New("b", "c"))
	if cat.String() != "a.b.c" {
		t.Errorf("Concat produced %v", cat)
	}
}

func TestHasWildcard(t *testing.T) {
	if !New("a", "*").HasWildcard() {
		t.Error("expected wildcard")
	}
	if New("a", "1").HasWildcard() {
		t.Error("index is not a wildcard")
	}
}
