package vfs

import (
	"strings"

	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
)

// OperationKind enumerates the service-level operations reported on
// onDidRunOperation.
type OperationKind int

const (
	OpCreate OperationKind = iota
	OpWrite
	OpMove
	OpCopy
	OpDelete
)

func (k OperationKind) String() string {
	switch k {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpMove:
		return "MOVE"
	case OpCopy:
		return "COPY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// OperationEvent is one entry on the onDidRunOperation stream. Stat is nil
// for DELETE, where no resulting FileStat exists.
type OperationEvent struct {
	Kind     OperationKind
	Resource uri.URI
	Target   uri.URI // populated for MOVE/COPY
	Stat     *provider.FileStat
}

// ChangesEvent batches provider change notifications rebroadcast by
// FileService as onDidFilesChange.
type ChangesEvent struct {
	Changes []provider.ChangeEvent
}

// Contains reports whether any change in the batch affects u, matching
// exactly or being an ancestor of u (a directory rename notification
// affects every descendant URI).
func (e ChangesEvent) Contains(u uri.URI, caseSensitive bool) bool {
	for _, c := range e.Changes {
		if c.Resource.Equal(u, caseSensitive) || c.Resource.IsEqualOrParent(u, caseSensitive) {
			return true
		}
	}
	return false
}

// pathTrie is the prefix trie used by Resolve to decide which directories
// in a stat tree need expanding: a directory is expanded
// when it is an ancestor of (or equal to) one of the seeded URIs.
type pathTrie struct {
	caseSensitive bool
	root          *trieNode
}

type trieNode struct {
	children map[string]*trieNode
}

func newPathTrie(caseSensitive bool) *pathTrie {
	return &pathTrie{caseSensitive: caseSensitive, root: &trieNode{children: map[string]*trieNode{}}}
}

func (t *pathTrie) fold(seg string) string {
	if t.caseSensitive {
		return seg
	}
	return strings.ToLower(seg)
}

// insert seeds u as a path that must remain reachable from the root.
func (t *pathTrie) insert(u uri.URI) {
	node := t.root
	for _, seg := range u.Segments() {
		seg = t.fold(seg)
		child, ok := node.children[seg]
		if !ok {
			child = &trieNode{children: map[string]*trieNode{}}
			node.children[seg] = child
		}
		node = child
	}
}

// hasDescendant reports whether u is a prefix of some seeded path (or is
// itself a seeded path), meaning resolve must keep expanding through u to
// reach it.
func (t *pathTrie) hasDescendant(u uri.URI) bool {
	node := t.root
	for _, seg := range u.Segments() {
		seg = t.fold(seg)
		child, ok := node.children[seg]
		if !ok {
			return false
		}
		node = child
	}
	return true
}
