package unwind

import (
	"github.com/crashwalk/mdwalk/internal/logflags"
	"github.com/crashwalk/mdwalk/pkg/cfiwalk"
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

const x86MaxScanDistance = 4 * 1024

func x86CallerFrame(
	calleeFrame, grandCalleeFrame *frame.StackFrame,
	stackMemory *minidump.Memory,
	modules *minidump.ModuleList,
	provider symbolize.SymbolProvider,
) *frame.StackFrame {
	calleeCtx := calleeFrame.Context
	log := logflags.Unwind().WithField("instruction", calleeFrame.Instruction)

	if f := x86TryCFI(calleeFrame, grandCalleeFrame, stackMemory, modules, provider); f != nil {
		return f
	}
	log.Trace("x86: CFI unavailable, falling back to frame pointer")
	if f := x86TryFramePointer(calleeCtx, stackMemory, modules, provider); f != nil {
		return f
	}
	log.Trace("x86: frame pointer unavailable, falling back to scan")
	return x86TryScan(calleeCtx, stackMemory, modules, provider)
}

func x86TryCFI(calleeFrame, grandCalleeFrame *frame.StackFrame, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	mod := calleeFrame.Module
	if mod == nil {
		return nil
	}
	calleeCtx := calleeFrame.Context
	callerCtx := calleeCtx.Clone()
	*callerCtx.Validity() = cpucontext.NewValidity()

	var grandCalleeParamSize uint32
	if grandCalleeFrame != nil && grandCalleeFrame.HasParameterSize {
		grandCalleeParamSize = grandCalleeFrame.ParameterSize
	}

	w := cfiwalk.New(calleeFrame.Instruction, grandCalleeParamSize, 4, calleeCtx, *calleeCtx.Validity(), callerCtx, stackMemory)
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

// x86TryFramePointer chains [EBP] -> saved EBP, [EBP+4] -> return
// address, caller ESP = EBP + 8 (§4.3 x86: same chaining as amd64 but
// 32-bit words and offsets 0/4).
func x86TryFramePointer(calleeCtx cpucontext.CPUContext, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	if stackMemory == nil {
		return nil
	}
	bp, ok := calleeCtx.GetRegister("ebp", *calleeCtx.Validity())
	if !ok || bp == 0 {
		return nil
	}
	savedBP, ok := stackMemory.ReadWordAt(bp, 4)
	if !ok {
		return nil
	}
	retAddr, ok := stackMemory.ReadWordAt(bp+4, 4)
	if !ok {
		return nil
	}
	callerCtx := calleeCtx.Clone()
	*callerCtx.Validity() = cpucontext.NewValidity()
	callerCtx.SetRegister("ebp", savedBP)
	callerCtx.SetRegister("esp", bp+8)
	callerCtx.SetRegister("eip", retAddr)

	if !commonlyValid(calleeCtx, callerCtx, modules, provider) {
		return nil
	}
	return buildFrame(callerCtx, frame.TrustFramePointer)
}

func x86TryScan(calleeCtx cpucontext.CPUContext, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	if stackMemory == nil {
		return nil
	}
	calleeSP, ok := calleeCtx.GetRegister("esp", *calleeCtx.Validity())
	if !ok {
		return nil
	}
	for addr := calleeSP; addr-calleeSP <= x86MaxScanDistance; addr += 4 {
		candidate, ok := stackMemory.ReadWordAt(addr, 4)
		if !ok {
			break
		}
		if candidate == 0 {
			continue
		}
		callerSP := addr + 4
		if !scanDistanceOK(calleeSP, callerSP, x86MaxScanDistance) {
			continue
		}
		if !symbolize.InstructionSeemsValidBySymbols(candidate, modules, provider) {
			continue
		}
		callerCtx := calleeCtx.Clone()
		*callerCtx.Validity() = cpucontext.NewValidity()
		callerCtx.SetRegister("esp", callerSP)
		callerCtx.SetRegister("eip", candidate)
		if !commonlyValid(calleeCtx, callerCtx, modules, provider) {
			continue
		}
		return buildFrame(callerCtx, frame.TrustScan)
	}
	return nil
}
