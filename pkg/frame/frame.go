// Package frame defines the data model shared by every component of
// the stack-walking core: a single reconstructed call frame, and the
// ordered sequence of frames that makes up one thread's call stack.
package frame

import (
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
)

// Trust records how a frame's instruction/register values were
// obtained. Strategies are tried in the order the zero value through
// Scan appear in §4.3, and the first one that produces a valid caller
// wins.
type Trust uint8

const (
	TrustNone Trust = iota
	TrustContext
	TrustCFI
	TrustFramePointer
	TrustScan
	TrustPrewalked
)

func (t Trust) String() string {
	switch t {
	case TrustContext:
		return "context"
	case TrustCFI:
		return "cfi"
	case TrustFramePointer:
		return "frame-pointer"
	case TrustScan:
		return "scan"
	case TrustPrewalked:
		return "prewalked"
	default:
		return "none"
	}
}

// Module is the minimal view of a loaded or unloaded module a frame
// can be resolved against. It is satisfied by pkg/minidump.Module;
// kept as an interface here so pkg/frame has no dependency on
// pkg/minidump (avoiding an import cycle with ModuleMap's own use of
// *StackFrame).
type Module interface {
	Name() string
	BaseOfImage() uint64
	Size() uint64
}

// StackFrame is one reconstructed frame of a call stack (§3).
type StackFrame struct {
	// Instruction is the return address exactly as stored on the
	// stack or in the context — never decremented. Code that needs
	// to probe "the call instruction" (§4.4, §9) must subtract 1
	// locally and must not store the result back here.
	Instruction uint64

	Trust   Trust
	Context cpucontext.CPUContext

	Module Module

	FunctionName    string
	FunctionBase    uint64
	SourceFile      string
	SourceLine      uint32
	SourceLineBase  uint64
	HasFunctionName bool
	HasSourceLine   bool

	// ParameterSize is the number of bytes of outgoing argument area
	// in THIS frame's callee, as reported by symbols. It becomes the
	// grand-callee parameter size when this frame's caller is
	// unwound (§3, §4.2).
	ParameterSize    uint32
	HasParameterSize bool

	// UnloadedModules maps module name to the set of instruction
	// offsets (instruction - base_of_image) for every unloaded module
	// whose interval contains Instruction, populated only when Module
	// is nil (§4.6 step 5).
	UnloadedModules map[string]map[uint64]struct{}
}

// FromContext builds the seed frame for a thread, trust=Context (§4.5 step 2).
func FromContext(ctx cpucontext.CPUContext) *StackFrame {
	pc, _ := ctx.GetRegister(ctx.InstructionPointerRegisterName(), *ctx.Validity())
	return &StackFrame{
		Instruction: pc,
		Trust:       TrustContext,
		Context:     ctx,
	}
}

// CallStackInfo records the overall disposition of one thread's walk.
type CallStackInfo uint8

const (
	CallStackOk CallStackInfo = iota
	CallStackMissingContext
	CallStackDumpThreadSkipped
)

func (i CallStackInfo) String() string {
	switch i {
	case CallStackMissingContext:
		return "missing-context"
	case CallStackDumpThreadSkipped:
		return "dump-thread-skipped"
	default:
		return "ok"
	}
}

// CallStack is the ordered, innermost-first sequence of frames for one thread.
type CallStack struct {
	Frames         []*StackFrame
	Info           CallStackInfo
	ThreadID       uint32
	ThreadName     string
	LastErrorValue uint32
	HasLastError   bool
}

// WithInfo builds an empty CallStack carrying only a disposition,
// used for the dump-thread-skipped and missing-context cases.
func WithInfo(threadID uint32, info CallStackInfo) *CallStack {
	return &CallStack{ThreadID: threadID, Info: info}
}
