package unwind

import (
	"github.com/crashwalk/mdwalk/internal/logflags"
	"github.com/crashwalk/mdwalk/pkg/cfiwalk"
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

// amd64MaxScanDistance bounds how far the scan strategy will walk
// looking for a plausible return address, per §4.3/§9's "scan tuning"
// note — an ISA constant, not an unbounded search.
const amd64MaxScanDistance = 8 * 1024

func amd64CallerFrame(
	calleeFrame, grandCalleeFrame *frame.StackFrame,
	stackMemory *minidump.Memory,
	modules *minidump.ModuleList,
	provider symbolize.SymbolProvider,
) *frame.StackFrame {
	calleeCtx := calleeFrame.Context
	log := logflags.Unwind().WithField("instruction", calleeFrame.Instruction)

	if f := amd64TryCFI(calleeFrame, grandCalleeFrame, stackMemory, modules, provider); f != nil {
		return f
	}
	log.Trace("amd64: CFI unavailable, falling back to frame pointer")
	if f := amd64TryFramePointer(calleeCtx, stackMemory, modules, provider); f != nil {
		return f
	}
	log.Trace("amd64: frame pointer unavailable, falling back to scan")
	return amd64TryScan(calleeCtx, stackMemory, modules, provider)
}

func amd64TryCFI(calleeFrame, grandCalleeFrame *frame.StackFrame, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	mod := calleeFrame.Module
	if mod == nil {
		return nil
	}
	calleeCtx := calleeFrame.Context
	callerCtx := calleeCtx.Clone()
	callerCtx.Validity().All = false
	callerCtx.Validity().Names = map[string]struct{}{}

	var grandCalleeParamSize uint32
	if grandCalleeFrame != nil && grandCalleeFrame.HasParameterSize {
		grandCalleeParamSize = grandCalleeFrame.ParameterSize
	}

	w := cfiwalk.New(calleeFrame.Instruction, grandCalleeParamSize, 8, calleeCtx, *calleeCtx.Validity(), callerCtx, stackMemory)
	if !provider.WalkFrame(mod, w) {
		return nil
	}
	if !w.Succeeded() {
		return nil
	}
	if !commonlyValid(calleeCtx, w.CallerContext(), modules, provider) {
		return nil
	}
	return buildFrame(w.CallerContext(), frame.TrustCFI)
}

func amd64TryFramePointer(calleeCtx cpucontext.CPUContext, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	if stackMemory == nil {
		return nil
	}
	bp, ok := calleeCtx.GetRegister("rbp", *calleeCtx.Validity())
	if !ok || bp == 0 {
		return nil
	}
	savedBP, ok := stackMemory.ReadWordAt(bp, 8)
	if !ok {
		return nil
	}
	retAddr, ok := stackMemory.ReadWordAt(bp+8, 8)
	if !ok {
		return nil
	}
	callerCtx := calleeCtx.Clone()
	*callerCtx.Validity() = cpucontext.NewValidity()
	callerCtx.SetRegister("rbp", savedBP)
	callerCtx.SetRegister("rsp", bp+16)
	callerCtx.SetRegister("rip", retAddr)

	if !commonlyValid(calleeCtx, callerCtx, modules, provider) {
		return nil
	}
	return buildFrame(callerCtx, frame.TrustFramePointer)
}

func amd64TryScan(calleeCtx cpucontext.CPUContext, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	if stackMemory == nil {
		return nil
	}
	calleeSP, ok := calleeCtx.GetRegister("rsp", *calleeCtx.Validity())
	if !ok {
		return nil
	}
	for addr := calleeSP; addr-calleeSP <= amd64MaxScanDistance; addr += 8 {
		candidate, ok := stackMemory.ReadWordAt(addr, 8)
		if !ok {
			break
		}
		if candidate == 0 {
			continue
		}
		callerSP := addr + 8
		if !scanDistanceOK(calleeSP, callerSP, amd64MaxScanDistance) {
			continue
		}
		if !symbolize.InstructionSeemsValidBySymbols(candidate, modules, provider) {
			continue
		}
		callerCtx := calleeCtx.Clone()
		*callerCtx.Validity() = cpucontext.NewValidity()
		callerCtx.SetRegister("rsp", callerSP)
		callerCtx.SetRegister("rip", candidate)
		if !commonlyValid(calleeCtx, callerCtx, modules, provider) {
			continue
		}
		return buildFrame(callerCtx, frame.TrustScan)
	}
	return nil
}
