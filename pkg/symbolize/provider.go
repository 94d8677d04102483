// Package symbolize defines the symbol-provider boundary (external
// collaborator, §1) and implements the bridge that cross-references
// frame instructions against modules and requests symbol fill (C4).
package symbolize

import (
	"errors"

	"github.com/crashwalk/mdwalk/pkg/minidump"
)

// ErrNoSymbols is the distinguished error fill_symbol returns when a
// module has no symbols at all, as opposed to having symbols but no
// record covering the requested address. §4.4's validity oracle
// treats the two differently.
var ErrNoSymbols = errors.New("no symbols for module")

// FrameSymbolizer is the minimal view of a frame the symbol provider
// fills in during fill_symbol. It never sees more than this — the
// capability surface intentionally does not expose the whole
// StackFrame (§9, narrow interface).
type FrameSymbolizer interface {
	Instruction() uint64
	SetFunction(name string, base uint64, parameterSize uint32)
	SetSourceLine(file string, line uint32, base uint64)
}

// FrameWalker is the capability object the CFI evaluator is given
// (C2, §4.2). Its methods are exactly those listed in §4.2 — this is
// the seam between the provider's CFI evaluator and the per-ISA
// unwinder, and is kept intentionally narrow so it can remain stable
// as new strategies are added on either side.
type FrameWalker interface {
	Instruction() uint64
	GrandCalleeParameterSize() uint32
	GetRegisterAtAddress(addr uint64) (uint64, bool)
	GetCalleeRegister(name string) (uint64, bool)
	SetCallerRegister(name string, val uint64) bool
	ClearCallerRegister(name string)
	SetCFA(val uint64) bool
	SetRA(val uint64) bool
}

// SymbolStats summarizes the symbol provider's own bookkeeping for
// inclusion in the final ProcessState (§6 Outputs).
type SymbolStats struct {
	ModulesQueried  int
	ModulesResolved int
	ModulesFailed   int
}

// SymbolProvider is the external collaborator (§1, §6) this core
// depends on for symbol and CFI information. It must be safe for
// concurrent read access (§5): thread unwinds may run concurrently
// and all of them call into the same provider.
type SymbolProvider interface {
	// FillSymbol fills in function/file/line information for frame,
	// best-effort. It returns ErrNoSymbols distinctly from "address
	// not covered by any record in otherwise-present symbols" (the
	// latter is simply not an error — the frame stays unfilled).
	FillSymbol(module *minidump.Module, f FrameSymbolizer) error

	// WalkFrame asks the provider to evaluate CFI for the callee
	// frame walker describes, mutating its caller_* fields. Returns
	// false if the provider has no CFI applicable to this instruction.
	WalkFrame(module *minidump.Module, walker FrameWalker) bool

	Stats() SymbolStats
}

// StackPointerAware is an optional capability a FrameWalker
// implementation may provide so a provider can read the callee's
// stack pointer without knowing the ISA's native register name. The
// real CFI driver (pkg/cfiwalk) always implements it; it exists
// outside the core §4.2 capability list because production CFI
// evaluators get the CFA from DWARF expressions instead and never
// need it, but FakeProvider's synthetic rules do.
type StackPointerAware interface {
	GetCalleeStackPointer() uint64
}
