package symbolize

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/crashwalk/mdwalk/pkg/minidump"
)

// SymbolRecord is one synthetic symbol table entry used by FakeProvider.
type SymbolRecord struct {
	Start         uint64
	End           uint64
	FunctionName  string
	ParameterSize uint32
	SourceFile    string
	SourceLine    uint32
}

// CFIRule is a synthetic CFI rule FakeProvider applies verbatim when
// WalkFrame is called for a covered instruction: it sets the caller's
// SP to calleeSP+CFADelta and its PC to the word read from
// calleeSP+CFADelta+RAOffset.
type CFIRule struct {
	Start, End uint64
	CFADelta   int64
	RAOffset   int64
}

// ModuleSymbols is one module's synthetic symbol table.
type ModuleSymbols struct {
	Records []SymbolRecord
	CFI     []CFIRule
}

// FakeProvider is a SymbolProvider used by tests and examples. It
// caches each module's lookup result in a bounded LRU
// (github.com/hashicorp/golang-lru), the way a real symbol provider
// caches parsed symbol files to avoid re-parsing on every frame in a
// deep stack — this is the "safe for ... its own internal caching"
// requirement called out in §5.
type FakeProvider struct {
	mu       sync.Mutex
	byModule map[string]*ModuleSymbols
	cache    *lru.Cache

	stats SymbolStats
}

// NewFakeProvider builds a FakeProvider with the given per-module
// symbol tables and an LRU cache sized for cacheSize modules.
func NewFakeProvider(byModule map[string]*ModuleSymbols, cacheSize int) *FakeProvider {
	if cacheSize <= 0 {
		cacheSize = 32
	}
	c, _ := lru.New(cacheSize)
	return &FakeProvider{byModule: byModule, cache: c}
}

func (p *FakeProvider) lookup(name string) (*ModuleSymbols, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.cache.Get(name); ok {
		ms, ok := v.(*ModuleSymbols)
		return ms, ok
	}
	ms, ok := p.byModule[name]
	if ok {
		p.cache.Add(name, ms)
	}
	return ms, ok
}

func (p *FakeProvider) FillSymbol(module *minidump.Module, f FrameSymbolizer) error {
	p.mu.Lock()
	p.stats.ModulesQueried++
	p.mu.Unlock()

	ms, ok := p.lookup(module.Name())
	if !ok {
		p.mu.Lock()
		p.stats.ModulesFailed++
		p.mu.Unlock()
		return ErrNoSymbols
	}
	pc := f.Instruction()
	for _, rec := range ms.Records {
		if pc >= rec.Start && pc < rec.End {
			f.SetFunction(rec.FunctionName, rec.Start, rec.ParameterSize)
			if rec.SourceFile != "" {
				f.SetSourceLine(rec.SourceFile, rec.SourceLine, rec.Start)
			}
			p.mu.Lock()
			p.stats.ModulesResolved++
			p.mu.Unlock()
			return nil
		}
	}
	// Module has symbols, just none covering this address: not an error.
	return nil
}

func (p *FakeProvider) WalkFrame(module *minidump.Module, walker FrameWalker) bool {
	ms, ok := p.lookup(module.Name())
	if !ok {
		return false
	}
	pc := walker.Instruction()
	for _, rule := range ms.CFI {
		if pc >= rule.Start && pc < rule.End {
			return applyCFIRule(walker, rule)
		}
	}
	return false
}

func applyCFIRule(walker FrameWalker, rule CFIRule) bool {
	spAware, ok := walker.(StackPointerAware)
	if !ok {
		return false
	}
	calleeSP := spAware.GetCalleeStackPointer()
	cfa := uint64(int64(calleeSP) + rule.CFADelta)
	raAddr := uint64(int64(cfa) + rule.RAOffset)
	ra, ok := walker.GetRegisterAtAddress(raAddr)
	if !ok {
		return false
	}
	if !walker.SetCFA(cfa) {
		return false
	}
	return walker.SetRA(ra)
}

func (p *FakeProvider) Stats() SymbolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
