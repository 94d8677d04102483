package symbolize

import (
	"github.com/crashwalk/mdwalk/internal/logflags"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
)

// frameAdapter lets a *frame.StackFrame satisfy FrameSymbolizer
// without pkg/frame importing pkg/symbolize (avoiding a cycle).
type frameAdapter struct{ f *frame.StackFrame }

func (a frameAdapter) Instruction() uint64 { return a.f.Instruction }

func (a frameAdapter) SetFunction(name string, base uint64, parameterSize uint32) {
	a.f.FunctionName = name
	a.f.HasFunctionName = name != ""
	a.f.FunctionBase = base
	a.f.ParameterSize = parameterSize
	a.f.HasParameterSize = true
}

func (a frameAdapter) SetSourceLine(file string, line uint32, base uint64) {
	a.f.SourceFile = file
	a.f.SourceLine = line
	a.f.SourceLineBase = base
	a.f.HasSourceLine = true
}

// FillSourceLineInfo finds the module covering f.Instruction and, if
// found, attaches it and asks the symbol provider to fill in symbolic
// detail. Symbol fill is best-effort: any error it returns is
// swallowed, leaving the frame's symbolic fields empty but the module
// still attached (§4.4, §7 tier 3).
func FillSourceLineInfo(f *frame.StackFrame, modules *minidump.ModuleList, provider SymbolProvider) {
	mod := modules.ModuleAtAddress(f.Instruction)
	if mod == nil {
		logflags.Symbolize().WithField("instruction", f.Instruction).Trace("no module covers this instruction, frame stays unattached")
		return
	}
	f.Module = mod
	if err := provider.FillSymbol(mod, frameAdapter{f}); err != nil {
		logflags.Symbolize().WithError(err).WithField("module", mod.Name()).Debug("symbol fill failed, frame keeps its module but no symbolic detail")
	}
}

// dummyFrame is the minimal frame-like object §4.4 feeds to the
// symbol provider when probing a candidate pointer's validity: it
// exposes only Instruction/SetFunction, and tracks whether a
// non-empty function name was set.
type dummyFrame struct {
	instruction uint64
	hasName     bool
}

func (d *dummyFrame) Instruction() uint64 { return d.instruction }
func (d *dummyFrame) SetFunction(name string, base uint64, parameterSize uint32) {
	d.hasName = name != ""
}
func (d *dummyFrame) SetSourceLine(file string, line uint32, base uint64) {}

// InstructionSeemsValidBySymbols implements the validity oracle of
// §4.4. It is consulted by scanning strategies unconditionally, and
// by CFI/frame-pointer strategies when their own invariants leave the
// candidate ambiguous.
func InstructionSeemsValidBySymbols(instruction uint64, modules *minidump.ModuleList, provider SymbolProvider) bool {
	if instruction == 0 {
		return false
	}
	// Return addresses point after the call instruction; probe one
	// byte earlier. This subtracted value must never leak outside
	// this function (§9).
	probe := instruction - 1

	mod := modules.ModuleAtAddress(probe)
	if mod == nil {
		logflags.Symbolize().WithField("instruction", instruction).Trace("scan candidate lands outside any module, rejecting")
		return false
	}

	d := &dummyFrame{instruction: probe}
	if err := provider.FillSymbol(mod, d); err != nil {
		// No symbols at all for this module: scanning must still work
		// without symbols, so treat the candidate as valid.
		logflags.Symbolize().WithField("module", mod.Name()).Trace("no symbols for module, treating scan candidate as valid")
		return true
	}
	if d.hasName {
		return true
	}

	// Symbols exist for this module but no record covers the probe.
	// Before giving up, see whether the module's captured code image
	// (when the dump carried one) shows a CALL instruction landing
	// exactly at instruction — a positive-only secondary signal, never
	// a rejection (§4.4, §9).
	if bytes, ok := mod.BytesBefore(instruction, maxCallLookback); ok {
		rescued := looksLikeCallBeforeEitherWidth(bytes)
		logflags.Symbolize().WithField("module", mod.Name()).WithField("rescued", rescued).Trace("no symbol record covers probe, consulted call-site heuristic")
		return rescued
	}
	logflags.Symbolize().WithField("module", mod.Name()).Trace("no symbol record covers probe and no code image to consult, rejecting")
	return false
}
