package minidump

import "sort"

// Module describes one loaded or unloaded module found in a minidump's
// module list. It satisfies pkg/frame.Module.
type Module struct {
	ModuleName string
	Base       uint64
	ImageSize  uint64
	Version    string
	DebugFile  string
	DebugID    string

	// CodeBytes is the module's captured code image starting at Base,
	// if the dump carried one (most minidumps capture only stack/heap
	// memory, so this is typically nil). When present, it backs the
	// call-site disassembly heuristic (§4.4, §9).
	CodeBytes []byte
}

func (m *Module) Name() string        { return m.ModuleName }
func (m *Module) BaseOfImage() uint64 { return m.Base }
func (m *Module) Size() uint64        { return m.ImageSize }

func (m *Module) contains(addr uint64) bool {
	return addr >= m.Base && addr < m.Base+m.ImageSize
}

// BytesBefore returns up to maxLen bytes of the module's captured code
// image ending immediately before addr (the half-open range
// [addr-n, addr)), or ok=false if no code image was captured or addr
// falls outside it.
func (m *Module) BytesBefore(addr uint64, maxLen int) ([]byte, bool) {
	if m == nil || len(m.CodeBytes) == 0 {
		return nil, false
	}
	if addr <= m.Base || addr > m.Base+uint64(len(m.CodeBytes)) {
		return nil, false
	}
	end := int(addr - m.Base)
	start := end - maxLen
	if start < 0 {
		start = 0
	}
	return m.CodeBytes[start:end], true
}

// ModuleList is an interval lookup over loaded modules: at most one
// module answers for any given address, namely the module with the
// highest Base at or below it, and only if its interval contains the
// address. On overlap, an earlier module that also contains the
// address is not consulted.
type ModuleList struct {
	mods []*Module // sorted by Base
}

func NewModuleList(mods []*Module) *ModuleList {
	sorted := append([]*Module(nil), mods...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	return &ModuleList{mods: sorted}
}

func (l *ModuleList) Modules() []*Module {
	if l == nil {
		return nil
	}
	return l.mods
}

// ModuleAtAddress returns the module whose [Base, Base+Size) interval
// contains addr, or nil.
func (l *ModuleList) ModuleAtAddress(addr uint64) *Module {
	if l == nil {
		return nil
	}
	// Binary search for the last module with Base <= addr.
	i := sort.Search(len(l.mods), func(i int) bool { return l.mods[i].Base > addr })
	if i == 0 {
		return nil
	}
	m := l.mods[i-1]
	if m.contains(addr) {
		return m
	}
	return nil
}

// UnloadedModuleList is a parallel lookup that, unlike ModuleList, may
// have multiple overlapping entries answer for the same address
// (§3, §4.6 step 5) — unloaded modules are frequently stale/reused
// address ranges.
type UnloadedModuleList struct {
	mods []*Module
}

func NewUnloadedModuleList(mods []*Module) *UnloadedModuleList {
	return &UnloadedModuleList{mods: append([]*Module(nil), mods...)}
}

func (l *UnloadedModuleList) Modules() []*Module {
	if l == nil {
		return nil
	}
	return l.mods
}

func (l *UnloadedModuleList) ModulesAtAddress(addr uint64) []*Module {
	if l == nil {
		return nil
	}
	var out []*Module
	for _, m := range l.mods {
		if m.contains(addr) {
			out = append(out, m)
		}
	}
	return out
}
