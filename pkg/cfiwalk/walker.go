// Package cfiwalk implements the CFI stack walker (C2): the
// capability object a symbol provider is handed when evaluating Call
// Frame Information for a callee frame, and the driver contract
// around it (§4.2).
package cfiwalk

import (
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/minidump"
)

// StackMemory is the narrow read interface the walker needs into a
// thread's captured stack bytes.
type StackMemory interface {
	ReadWordAt(addr uint64, size int) (uint64, bool)
}

// Walker implements symbolize.FrameWalker (kept decoupled by
// structural typing — cfiwalk does not import pkg/symbolize, which
// instead depends on this package's concrete type through the
// interface it already declares).
type Walker struct {
	instruction              uint64
	grandCalleeParameterSize uint32
	regSize                  int

	calleeCtx      cpucontext.CPUContext
	calleeValidity cpucontext.Validity

	callerCtx cpucontext.CPUContext

	stackMemory *minidump.Memory
}

// New builds a Walker for one CFI evaluation: instruction is the
// callee frame's return address, grandCalleeParameterSize threads
// through the callee-of-callee's outgoing argument bytes (§4.2,
// glossary), and callerCtx is a freshly cloned, empty-validity
// context the provider will populate via Set*/Clear* calls.
func New(instruction uint64, grandCalleeParameterSize uint32, regSize int, calleeCtx cpucontext.CPUContext, calleeValidity cpucontext.Validity, callerCtx cpucontext.CPUContext, stackMemory *minidump.Memory) *Walker {
	return &Walker{
		instruction:              instruction,
		grandCalleeParameterSize: grandCalleeParameterSize,
		regSize:                  regSize,
		calleeCtx:                calleeCtx,
		calleeValidity:           calleeValidity,
		callerCtx:                callerCtx,
		stackMemory:              stackMemory,
	}
}

func (w *Walker) Instruction() uint64             { return w.instruction }
func (w *Walker) GrandCalleeParameterSize() uint32 { return w.grandCalleeParameterSize }

func (w *Walker) GetRegisterAtAddress(addr uint64) (uint64, bool) {
	if w.stackMemory == nil {
		return 0, false
	}
	return w.stackMemory.ReadWordAt(addr, w.regSize)
}

func (w *Walker) GetCalleeRegister(name string) (uint64, bool) {
	return w.calleeCtx.GetRegister(name, w.calleeValidity)
}

// SetCallerRegister memoizes name against the caller context's ISA
// and, if recognized, writes val and marks it valid (§4.2: "successful
// set inserts the canonical name into the caller's validity set").
func (w *Walker) SetCallerRegister(name string, val uint64) bool {
	canon := w.callerCtx.MemoizeRegister(name)
	if canon == "" {
		return false
	}
	w.callerCtx.SetRegister(canon, val)
	return true
}

func (w *Walker) ClearCallerRegister(name string) {
	w.callerCtx.Validity().Remove(name)
}

func (w *Walker) SetCFA(val uint64) bool {
	name := w.callerCtx.StackPointerRegisterName()
	w.callerCtx.SetRegister(name, val)
	return true
}

func (w *Walker) SetRA(val uint64) bool {
	name := w.callerCtx.InstructionPointerRegisterName()
	w.callerCtx.SetRegister(name, val)
	return true
}

// GetCalleeStackPointer implements symbolize.StackPointerAware.
func (w *Walker) GetCalleeStackPointer() uint64 {
	sp, _ := w.calleeCtx.GetRegister(w.calleeCtx.StackPointerRegisterName(), w.calleeValidity)
	return sp
}

// CallerContext returns the in-construction caller context after the
// provider has finished mutating it through the Walker.
func (w *Walker) CallerContext() cpucontext.CPUContext { return w.callerCtx }

// Succeeded implements the driver contract of §4.2: CFI evaluation
// succeeds iff both SP and PC ended up present in the caller's
// validity set.
func (w *Walker) Succeeded() bool {
	v := w.callerCtx.Validity()
	return v.Has(w.callerCtx.StackPointerRegisterName()) && v.Has(w.callerCtx.InstructionPointerRegisterName())
}
