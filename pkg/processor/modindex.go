package processor

import (
	"github.com/derekparker/trie"

	"github.com/crashwalk/mdwalk/pkg/minidump"
)

// ModuleNameIndex is a prefix index over every module name seen in a
// ProcessState (loaded and unloaded), letting the CLI's module filter
// flag complete/match on partial names without a linear scan over
// potentially thousands of unloaded-module entries.
type ModuleNameIndex struct {
	t *trie.Trie
}

// NewModuleNameIndex builds an index from a loaded and an unloaded
// module list.
func NewModuleNameIndex(loaded *minidump.ModuleList, unloaded *minidump.UnloadedModuleList) *ModuleNameIndex {
	t := trie.New()
	for _, m := range loaded.Modules() {
		t.Add(m.Name(), m)
	}
	for _, m := range unloaded.Modules() {
		t.Add(m.Name(), m)
	}
	return &ModuleNameIndex{t: t}
}

// MatchPrefix returns every indexed module name beginning with prefix.
func (idx *ModuleNameIndex) MatchPrefix(prefix string) []string {
	if idx == nil || idx.t == nil {
		return nil
	}
	return idx.t.PrefixSearch(prefix)
}
