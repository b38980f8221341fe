package uri

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"mem:/a/b/c",
		"s3://bucket/key/path",
		"mem:/a/b?rev=3#frag",
	}
	for _, c := range cases {
		u, err := Parse(c)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		if got := u.String(); got != c {
			t.Errorf("Parse(%q).String() = %q", c, got)
		}
	}
}

func TestParent(t *testing.T) {
	u := MustParse("mem:/a/b/c")
	if got := u.Parent().Path; got != "/a/b" {
		t.Errorf("Parent().Path = %q, want /a/b", got)
	}
	root := MustParse("mem:/")
	if got := root.Parent().Path; got != "/" {
		t.Errorf("Parent of root = %q, want /", got)
	}
}

func TestJoin(t *testing.T) {
	u := MustParse("mem:/a")
	if got := u.Join("b").Path; got != "/a/b" {
		t.Errorf("Join = %q, want /a/b", got)
	}
	root := MustParse("mem:/")
	if got := root.Join("x").Path; got != "/x" {
		t.Errorf("root.Join = %q, want /x", got)
	}
}

func TestResolveDotDot(t *testing.T) {
	u := MustParse("mem:/a/b")
	got := u.Resolve("../c").Path
	if got != "/a/c" {
		t.Errorf("Resolve(../c) = %q, want /a/c", got)
	}
}

func TestIsEqualOrParent(t *testing.T) {
	parent := MustParse("mem:/a")
	child := MustParse("mem:/a/b/c")
	other := MustParse("mem:/z")

	if !parent.IsEqualOrParent(child, true) {
		t.Error("expected parent.IsEqualOrParent(child) == true")
	}
	if parent.IsEqualOrParent(other, true) {
		t.Error("expected parent.IsEqualOrParent(other) == false")
	}
	if !parent.IsEqualOrParent(parent, true) {
		t.Error("a URI must be equal-or-parent of itself")
	}
}

func TestIsEqualOrParentCaseFold(t *testing.T) {
	parent := MustParse("mem:/A")
	child := MustParse("mem:/a/B")
	if parent.IsEqualOrParent(child, true) {
		t.Error("case-sensitive compare must not fold case")
	}
	if !parent.IsEqualOrParent(child, false) {
		t.Error("case-insensitive compare must fold case")
	}
}

func TestEqualCaseInsensitive(t *testing.T) {
	a := MustParse("mem:/Foo/Bar")
	b := MustParse("mem:/foo/bar")
	if a.Equal(b, true) {
		t.Error("case-sensitive equality should distinguish case")
	}
	if !a.Equal(b, false) {
		t.Error("case-insensitive equality should fold case")
	}
}
