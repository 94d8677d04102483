package unwind_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
	"github.com/crashwalk/mdwalk/pkg/unwind"
)

func le64(vals ...uint64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

func moduleList() *minidump.ModuleList {
	return minidump.NewModuleList([]*minidump.Module{
		{ModuleName: "a.out", Base: 0x400000, ImageSize: 0x10000},
	})
}

// TestAMD64FramePointerChain builds a two-level RBP chain in synthetic
// stack memory and checks the frame-pointer strategy recovers the
// caller's saved RBP, return address, and SP = RBP+16 (§4.3 amd64).
func TestAMD64FramePointerChain(t *testing.T) {
	stackBase := uint64(0x7f0000)
	// At stackBase: saved rbp=0x7f1000, return address=0x400123.
	mem := &minidump.Memory{Base: stackBase, Bytes: le64(0x7f1000, 0x400123)}

	ctx := cpucontext.NewAMD64Context(map[string]uint64{
		"rbp": stackBase,
		"rsp": stackBase - 8,
		"rip": 0x400050,
	}, cpucontext.AllValid())

	callee := frame.FromContext(ctx)
	provider := symbolize.NewFakeProvider(nil, 4)

	caller := unwind.GetCallerFrame(callee, nil, mem, moduleList(), provider)
	require.NotNil(t, caller)
	require.Equal(t, frame.TrustFramePointer, caller.Trust)
	require.EqualValues(t, 0x400123, caller.Instruction)

	callerSP, ok := caller.Context.GetRegister("rsp", *caller.Context.Validity())
	require.True(t, ok)
	require.EqualValues(t, stackBase+16, callerSP)
}

func TestAMD64UnwindStopsWhenNoStackMemory(t *testing.T) {
	ctx := cpucontext.NewAMD64Context(map[string]uint64{"rbp": 0x1000, "rsp": 0x900, "rip": 0x400050}, cpucontext.AllValid())
	callee := frame.FromContext(ctx)
	provider := symbolize.NewFakeProvider(nil, 4)

	caller := unwind.GetCallerFrame(callee, nil, nil, moduleList(), provider)
	require.Nil(t, caller, "with no stack memory, frame-pointer and scan must both fail")
}

func TestAMD64ScanRejectsZeroCandidates(t *testing.T) {
	stackBase := uint64(0x7f0000)
	// No frame pointer set (rbp absent from validity), so only scan can
	// apply; first candidate word is zero and must be skipped, second
	// is a valid-looking in-module address.
	mem := &minidump.Memory{Base: stackBase, Bytes: le64(0, 0x400200)}

	v := cpucontext.NewValidity()
	v.Add("rsp")
	v.Add("rip")
	ctx := cpucontext.NewAMD64Context(map[string]uint64{"rsp": stackBase, "rip": 0x400050}, v)
	callee := frame.FromContext(ctx)
	provider := symbolize.NewFakeProvider(nil, 4)

	caller := unwind.GetCallerFrame(callee, nil, mem, moduleList(), provider)
	require.NotNil(t, caller)
	require.Equal(t, frame.TrustScan, caller.Trust)
	require.EqualValues(t, 0x400200, caller.Instruction)
}
