// Package threadwalk implements the per-thread walker (C5): seed a
// call stack from a register context, repeatedly invoke the
// ISA-dispatched caller-frame recovery in pkg/unwind, and assemble the
// resulting frames into a frame.CallStack.
package threadwalk

import (
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
	"github.com/crashwalk/mdwalk/pkg/unwind"
)

// maxFrames bounds the walk independently of the SP-monotonicity
// guarantee, as a defense against a pathological provider that keeps
// producing technically-increasing SPs forever.
const maxFrames = 1024

// WalkStack implements §4.5's walk_stack: ctx is nil when the thread's
// register context could not be obtained (missing context stream or
// dump corruption), in which case the returned CallStack carries
// info=MissingContext and no frames.
func WalkStack(
	ctx cpucontext.CPUContext,
	stackMemory *minidump.Memory,
	modules *minidump.ModuleList,
	provider symbolize.SymbolProvider,
) *frame.CallStack {
	if ctx == nil {
		return &frame.CallStack{Info: frame.CallStackMissingContext}
	}

	seed := frame.FromContext(ctx)
	symbolize.FillSourceLineInfo(seed, modules, provider)

	frames := []*frame.StackFrame{seed}

	var callee, grandCallee *frame.StackFrame = seed, nil
	for len(frames) < maxFrames {
		caller := unwind.GetCallerFrame(callee, grandCallee, stackMemory, modules, provider)
		if caller == nil {
			break
		}
		symbolize.FillSourceLineInfo(caller, modules, provider)
		frames = append(frames, caller)
		grandCallee, callee = callee, caller
	}

	// Unloaded-module attribution (§4.6 step 5) is the orchestrator's
	// job: it is the only layer that holds the unloaded-module list.
	return &frame.CallStack{Frames: frames, Info: frame.CallStackOk}
}
