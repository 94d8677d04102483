package unwind

import (
	"github.com/crashwalk/mdwalk/internal/logflags"
	"github.com/crashwalk/mdwalk/pkg/cfiwalk"
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

const arm64MaxScanDistance = 8 * 1024

// arm64CallerFrame serves both ArchARM64 and ArchARM64Old contexts —
// the legacy minidump layout only changes which stream tag produced
// the context, not the unwind logic (§4.3).
func arm64CallerFrame(
	calleeFrame, grandCalleeFrame *frame.StackFrame,
	stackMemory *minidump.Memory,
	modules *minidump.ModuleList,
	provider symbolize.SymbolProvider,
) *frame.StackFrame {
	calleeCtx := calleeFrame.Context
	log := logflags.Unwind().WithField("instruction", calleeFrame.Instruction)

	if f := arm64TryCFI(calleeFrame, grandCalleeFrame, stackMemory, modules, provider); f != nil {
		return f
	}
	log.Trace("arm64: CFI unavailable, falling back to frame pointer")
	if f := arm64TryFramePointer(calleeCtx, stackMemory, modules, provider); f != nil {
		return f
	}
	log.Trace("arm64: frame pointer unavailable, falling back to scan")
	return arm64TryScan(calleeCtx, stackMemory, modules, provider)
}

func arm64TryCFI(calleeFrame, grandCalleeFrame *frame.StackFrame, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
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

	w := cfiwalk.New(calleeFrame.Instruction, grandCalleeParamSize, 8, calleeCtx, *calleeCtx.Validity(), callerCtx, stackMemory)
	if !provider.WalkFrame(mod, w) {
		return nil
	}
	if !w.Succeeded() {
		return nil
	}
	maskPACRegister(w.CallerContext(), "pc")
	if !commonlyValid(calleeCtx, w.CallerContext(), modules, provider) {
		return nil
	}
	return buildFrame(w.CallerContext(), frame.TrustCFI)
}

// arm64TryFramePointer follows the AAPCS64 frame-record chain: [fp] ->
// saved fp, [fp+8] -> saved lr (the caller's return address), caller
// sp = fp + 16 (§4.3).
func arm64TryFramePointer(calleeCtx cpucontext.CPUContext, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	if stackMemory == nil {
		return nil
	}
	fp, ok := calleeCtx.GetRegister("fp", *calleeCtx.Validity())
	if !ok || fp == 0 {
		return nil
	}
	savedFP, ok := stackMemory.ReadWordAt(fp, 8)
	if !ok {
		return nil
	}
	savedLR, ok := stackMemory.ReadWordAt(fp+8, 8)
	if !ok {
		return nil
	}
	callerCtx := calleeCtx.Clone()
	*callerCtx.Validity() = cpucontext.NewValidity()
	callerCtx.SetRegister("fp", savedFP)
	callerCtx.SetRegister("sp", fp+16)
	callerCtx.SetRegister("pc", cpucontext.MaskPAC(savedLR))
	callerCtx.SetRegister("lr", cpucontext.MaskPAC(savedLR))

	if !commonlyValid(calleeCtx, callerCtx, modules, provider) {
		return nil
	}
	return buildFrame(callerCtx, frame.TrustFramePointer)
}

func arm64TryScan(calleeCtx cpucontext.CPUContext, stackMemory *minidump.Memory, modules *minidump.ModuleList, provider symbolize.SymbolProvider) *frame.StackFrame {
	if stackMemory == nil {
		return nil
	}
	calleeSP, ok := calleeCtx.GetRegister("sp", *calleeCtx.Validity())
	if !ok {
		return nil
	}
	for addr := calleeSP; addr-calleeSP <= arm64MaxScanDistance; addr += 8 {
		raw, ok := stackMemory.ReadWordAt(addr, 8)
		if !ok {
			break
		}
		if raw == 0 {
			continue
		}
		candidate := cpucontext.MaskPAC(raw)
		callerSP := addr + 8
		if !scanDistanceOK(calleeSP, callerSP, arm64MaxScanDistance) {
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

// maskPACRegister strips authentication bits from a CFI-recovered
// register value — a CFI driver reads raw stack words, same as any
// other memory access.
func maskPACRegister(ctx cpucontext.CPUContext, name string) {
	v, ok := ctx.GetRegister(name, *ctx.Validity())
	if !ok {
		return
	}
	ctx.SetRegister(name, cpucontext.MaskPAC(v))
}
