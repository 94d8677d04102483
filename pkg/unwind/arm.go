package unwind

import (
	"github.com/crashwalk/mdwalk/internal/logflags"
	"github.com/crashwalk/mdwalk/pkg/cfiwalk"
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

const armMaxScanDistance = 4 * 1024

func armCallerFrame(
	calleeFrame, grandCalleeFrame *frame.StackFrame,
	stackMemory *minidump.Memory,
	modules *minidump.ModuleList,
	provider symbolize.SymbolProvider,
) *frame.StackFrame {
	calleeCtx := calleeFrame.Context
	log := logflags.Unwind().WithField("instruction", calleeFrame.Instruction)

	if f := armTryCFI(calleeFrame, grandCalleeFrame, stackMemory, modules, provider); f != nil {
		return f
	}
	log.Trace("arm: CFI unavailable")
	// §4.3 arm32: on the first step off the context frame, LR already
	// holds the return address — try it directly before falling back
	// to a stack-memory-based recovery.
	if calleeFrame.Trust == frame.TrustContext {
		if f := armTryLinkRegister(calleeCtx, modules, provider); f != nil {
			return f
		}
		log.Trace("arm: link register unavailable, falling back to frame pointer")
	}
	if f := armTryFramePointer(calleeCtx, stackMemory, modules, provider); f != nil {
		return f
	}
	log.Trace("arm: frame pointer unavailable, falling back to scan")
	return armTryScan(calleeCtx, stackMemory, modules, provider)
}

func armTryCFI(calleeFrame, grandCalleeFrame *frame.StackFrame, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
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

func armTryLinkRegister(calleeCtx cpucontext.CPUContext, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	lr, ok := calleeCtx.GetRegister("lr", *calleeCtx.Validity())
	if !ok || lr == 0 {
		return nil
	}
	sp, ok := calleeCtx.GetRegister("sp", *calleeCtx.Validity())
	if !ok {
		return nil
	}
	callerCtx := calleeCtx.Clone()
	*callerCtx.Validity() = cpucontext.NewValidity()
	callerCtx.SetRegister("sp", sp+4) // conservative: assume one word popped
	callerCtx.SetRegister("pc", lr)
	if !commonlyValid(calleeCtx, callerCtx, modules, provider) {
		return nil
	}
	return buildFrame(callerCtx, frame.TrustFramePointer)
}

// armTryFramePointer follows the r11 (or, under Thumb conventions, r7)
// frame-pointer chain: [fp] -> saved fp, [fp+4] -> return address,
// caller sp = fp + 8 (§4.3).
func armTryFramePointer(calleeCtx cpucontext.CPUContext, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	if stackMemory == nil {
		return nil
	}
	for _, fpReg := range []string{"r11", "r7"} {
		fp, ok := calleeCtx.GetRegister(fpReg, *calleeCtx.Validity())
		if !ok || fp == 0 {
			continue
		}
		savedFP, ok := stackMemory.ReadWordAt(fp, 4)
		if !ok {
			continue
		}
		retAddr, ok := stackMemory.ReadWordAt(fp+4, 4)
		if !ok {
			continue
		}
		callerCtx := calleeCtx.Clone()
		*callerCtx.Validity() = cpucontext.NewValidity()
		callerCtx.SetRegister(fpReg, savedFP)
		callerCtx.SetRegister("sp", fp+8)
		callerCtx.SetRegister("pc", retAddr)
		if !commonlyValid(calleeCtx, callerCtx, modules, provider) {
			continue
		}
		return buildFrame(callerCtx, frame.TrustFramePointer)
	}
	return nil
}

func armTryScan(calleeCtx cpucontext.CPUContext, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	if stackMemory == nil {
		return nil
	}
	calleeSP, ok := calleeCtx.GetRegister("sp", *calleeCtx.Validity())
	if !ok {
		return nil
	}
	for addr := calleeSP; addr-calleeSP <= armMaxScanDistance; addr += 4 {
		candidate, ok := stackMemory.ReadWordAt(addr, 4)
		if !ok {
			break
		}
		if candidate == 0 {
			continue
		}
		callerSP := addr + 4
		if !scanDistanceOK(calleeSP, callerSP, armMaxScanDistance) {
			continue
		}
		if !symbolize.InstructionSeemsValidBySymbols(candidate, modules, provider) {
			continue
		}
		callerCtx := calleeCtx.Clone()
		*callerCtx.Validity() = cpucontext.NewValidity()
		callerCtx.SetRegister("sp", callerSP)
		callerCtx.SetRegister("pc", candidate)
		if !commonlyValid(calleeCtx, callerCtx, modules, provider) {
			continue
		}
		return buildFrame(callerCtx, frame.TrustScan)
	}
	return nil
}
