package unwind

import (
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

// commonlyValid implements the invariants of §4.3 shared by every
// ISA: PC/SP present, SP strictly increasing, PC non-zero, and PC
// either inside a known module or accepted by the symbols-based
// validity oracle.
func commonlyValid(calleeCtx cpucontext.CPUContext, callerCtx cpucontext.CPUContext, modules *minidump.ModuleList, provider symbolize.SymbolProvider) bool {
	callerV := *callerCtx.Validity()
	pcName := callerCtx.InstructionPointerRegisterName()
	spName := callerCtx.StackPointerRegisterName()

	pc, ok := callerCtx.GetRegister(pcName, callerV)
	if !ok {
		return false
	}
	sp, ok := callerCtx.GetRegister(spName, callerV)
	if !ok {
		return false
	}
	if pc == 0 {
		return false
	}

	calleeV := *calleeCtx.Validity()
	calleeSP, ok := calleeCtx.GetRegister(calleeCtx.StackPointerRegisterName(), calleeV)
	if !ok {
		return false
	}
	if sp <= calleeSP {
		return false
	}

	if modules.ModuleAtAddress(pc) != nil {
		return true
	}
	return symbolize.InstructionSeemsValidBySymbols(pc, modules, provider)
}

// scanDistanceOK enforces the ISA-specific maximum plausible frame
// size for scan-derived results only (§4.3).
func scanDistanceOK(calleeSP, callerSP, maxDistance uint64) bool {
	if callerSP <= calleeSP {
		return false
	}
	return callerSP-calleeSP <= maxDistance
}

// buildFrame wraps a freshly constructed caller context into a
// StackFrame with the winning strategy's trust level, seeding
// Instruction from the context's own PC.
func buildFrame(ctx cpucontext.CPUContext, trust frame.Trust) *frame.StackFrame {
	pc, _ := ctx.GetRegister(ctx.InstructionPointerRegisterName(), *ctx.Validity())
	return &frame.StackFrame{
		Instruction: pc,
		Trust:       trust,
		Context:     ctx,
	}
}
