package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmoj-sandbox/cptbox-go/domain"
)

func TestEmptyPolicyDeniesEverything(t *testing.T) {
	tr := Compile(nil)
	require.False(t, tr.Check("/"))
	require.False(t, tr.Check("/tmp/anything"))
}

func TestExactFileMatchesOnlyThatPath(t *testing.T) {
	tr := Compile([]domain.Rule{domain.ExactFileRule("/etc/passwd")})
	require.True(t, tr.Check("/etc/passwd"))
	require.False(t, tr.Check("/etc/shadow"))
	require.False(t, tr.Check("/etc"))
}

func TestExactDirDoesNotMatchChildren(t *testing.T) {
	tr := Compile([]domain.Rule{domain.ExactDirRule("/work")})
	require.True(t, tr.Check("/work"))
	require.False(t, tr.Check("/work/out.txt"))
}

func TestRecursiveDirMatchesDescendants(t *testing.T) {
	tr := Compile([]domain.Rule{domain.RecursiveDirRule("/sandbox")})
	require.True(t, tr.Check("/sandbox"))
	require.True(t, tr.Check("/sandbox/evil"))
	require.True(t, tr.Check("/sandbox/a/b/c"))
	require.False(t, tr.Check("/sandboxevil"))
	require.False(t, tr.Check("/other"))
}

func TestRootOnlyMatchesWithExplicitRule(t *testing.T) {
	require.False(t, Compile(nil).Check("/"))
	require.True(t, Compile([]domain.Rule{domain.RecursiveDirRule("/")}).Check("/anything/deep"))
}

func TestNormalizeIsIdempotentAndCollapsesSegments(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/a/b/", "/a/b"},
		{"/a//b", "/a/b"},
		{"/a/./b", "/a/b"},
		{"/a/../b", "/b"},
		{"", "/"},
		{"/", "/"},
	}
	for _, c := range cases {
		got := Normalize(c.in)
		require.Equal(t, c.want, got, "Normalize(%q)", c.in)
		require.Equal(t, got, Normalize(got), "idempotence for %q", c.in)
	}
}

func TestMatchingIsOrderIndependent(t *testing.T) {
	rules := []domain.Rule{
		domain.ExactFileRule("/a"),
		domain.RecursiveDirRule("/b"),
		domain.ExactDirRule("/c"),
	}
	reversed := []domain.Rule{rules[2], rules[1], rules[0]}

	t1, t2 := Compile(rules), Compile(reversed)
	for _, p := range []string{"/a", "/b/x", "/c", "/d"} {
		require.Equal(t, t1.Check(p), t2.Check(p), "path %q", p)
	}
}
