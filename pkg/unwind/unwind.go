// Package unwind implements the per-architecture caller-frame
// recovery (C3): for each supported ISA, attempt CFI, then frame
// pointer, then stack scanning, picking the first strategy that
// produces a valid caller frame (§4.3).
package unwind

import (
	"github.com/crashwalk/mdwalk/internal/logflags"
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

// GetCallerFrame dispatches to the ISA-specific unwinder for
// calleeFrame's context. grandCalleeFrame is nil for the first caller
// recovered from the seed frame (§4.2 glossary: "grand-callee
// parameter size").
func GetCallerFrame(
	calleeFrame *frame.StackFrame,
	grandCalleeFrame *frame.StackFrame,
	stackMemory *minidump.Memory,
	modules *minidump.ModuleList,
	provider symbolize.SymbolProvider,
) *frame.StackFrame {
	if calleeFrame == nil || calleeFrame.Context == nil {
		return nil
	}
	switch calleeFrame.Context.Arch() {
	case cpucontext.ArchAMD64:
		return amd64CallerFrame(calleeFrame, grandCalleeFrame, stackMemory, modules, provider)
	case cpucontext.ArchX86:
		return x86CallerFrame(calleeFrame, grandCalleeFrame, stackMemory, modules, provider)
	case cpucontext.ArchARM32:
		return armCallerFrame(calleeFrame, grandCalleeFrame, stackMemory, modules, provider)
	case cpucontext.ArchARM64, cpucontext.ArchARM64Old:
		return arm64CallerFrame(calleeFrame, grandCalleeFrame, stackMemory, modules, provider)
	default:
		// PPC/PPC64/SPARC/MIPS and anything else: unsupported, no
		// unwinding beyond the seed frame (§9 Open Questions).
		logflags.Unwind().WithField("arch", calleeFrame.Context.Arch().String()).Debug("no unwinder for this architecture, stopping at seed frame")
		return nil
	}
}
