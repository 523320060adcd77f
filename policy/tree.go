// Package policy compiles a list of filesystem access rules into a matcher
// answering check(path) -> bool.
//
// The compiled form is a github.com/hashicorp/go-immutable-radix tree keyed
// by normalized absolute path, the same library sysbox-fs's own
// handler/handlerDB.go and mount/helper.go use for their path-indexed
// lookup trees. Exact rules are plain Get lookups; RecursiveDir admission
// walks path ancestors doing a Get at each level rather than relying on the
// radix tree's LongestPrefix, since LongestPrefix matches on raw byte
// prefixes and would wrongly admit "/sandboxevil" under a rule for
// "/sandbox".
package policy

import (
	"path"
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/dmoj-sandbox/cptbox-go/domain"
)

// Tree is the compiled, immutable form of a rule list.
type Tree struct {
	tree *iradix.Tree
}

// Compile builds a Tree from a rule list. Insertion order does not affect
// matching: any matching rule admits. An empty or nil rule list compiles to
// a Tree that denies every path.
func Compile(rules []domain.Rule) *Tree {
	t := iradix.New()
	for _, r := range rules {
		key := []byte(Normalize(r.Path))
		t, _, _ = t.Insert(key, r.Kind)
	}
	return &Tree{tree: t}
}

// Check reports whether path lies within the compiled policy. path must
// already be absolute; it is normalized again defensively before matching.
func (t *Tree) Check(p string) bool {
	if t == nil {
		return false
	}
	p = Normalize(p)

	if kindVal, ok := t.tree.Get([]byte(p)); ok {
		switch kindVal.(domain.RuleKind) {
		case domain.ExactFile, domain.ExactDir, domain.RecursiveDir:
			return true
		}
	}

	for dir := parent(p); ; dir = parent(dir) {
		if kindVal, ok := t.tree.Get([]byte(dir)); ok {
			if kindVal.(domain.RuleKind) == domain.RecursiveDir {
				return true
			}
		}
		if dir == "/" {
			break
		}
	}

	return false
}

var _ domain.PolicyTree = (*Tree)(nil)

// parent returns p's parent directory in the same normalized form Normalize
// produces, stopping at "/".
func parent(p string) string {
	if p == "/" {
		return "/"
	}
	dir := path.Dir(p)
	return Normalize(dir)
}

// Normalize lexically normalizes an absolute path: collapses "//", ".", and
// "..", and ensures a single leading slash with no trailing slash (except
// root). It is idempotent: Normalize(Normalize(p)) == Normalize(p).
func Normalize(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "." {
		return "/"
	}
	return "/" + strings.TrimPrefix(cleaned, "/")
}
