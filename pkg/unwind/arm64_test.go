package unwind_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
	"github.com/crashwalk/mdwalk/pkg/unwind"
)

// pacTaggedLR returns a return address with a fake PAC tag set in its
// top byte, to verify the frame-pointer strategy strips it.
func pacTaggedLR(addr uint64) uint64 {
	return addr | (0xAB << 56)
}

func TestARM64FramePointerChainStripsPAC(t *testing.T) {
	stackBase := uint64(0x3000)
	mem := &minidump.Memory{Base: stackBase, Bytes: le64(0x3100, pacTaggedLR(0x400999))}

	ctx := cpucontext.NewARM64Context(map[string]uint64{
		"fp": stackBase, "sp": stackBase - 16, "pc": 0x400050,
	}, cpucontext.AllValid(), false)
	callee := frame.FromContext(ctx)
	modules := minidump.NewModuleList([]*minidump.Module{{ModuleName: "a.out", Base: 0x400000, ImageSize: 0x10000}})
	provider := symbolize.NewFakeProvider(nil, 4)

	caller := unwind.GetCallerFrame(callee, nil, mem, modules, provider)
	require.NotNil(t, caller)
	require.Equal(t, frame.TrustFramePointer, caller.Trust)
	require.EqualValues(t, 0x400999, caller.Instruction, "PAC tag must be stripped from the recovered pc")

	sp, ok := caller.Context.GetRegister("sp", *caller.Context.Validity())
	require.True(t, ok)
	require.EqualValues(t, stackBase+16, sp)
}

func TestARM64OldContextSameUnwindLogic(t *testing.T) {
	stackBase := uint64(0x3000)
	mem := &minidump.Memory{Base: stackBase, Bytes: le64(0, 0x400555)}

	ctx := cpucontext.NewARM64Context(map[string]uint64{
		"fp": stackBase, "sp": stackBase - 16, "pc": 0x400050,
	}, cpucontext.AllValid(), true)
	require.Equal(t, cpucontext.ArchARM64Old, ctx.Arch())

	callee := frame.FromContext(ctx)
	modules := minidump.NewModuleList([]*minidump.Module{{ModuleName: "a.out", Base: 0x400000, ImageSize: 0x10000}})
	provider := symbolize.NewFakeProvider(nil, 4)

	caller := unwind.GetCallerFrame(callee, nil, mem, modules, provider)
	require.NotNil(t, caller)
	require.EqualValues(t, 0x400555, caller.Instruction)
}

func TestARM64ScanMasksPACOnEveryCandidate(t *testing.T) {
	stackBase := uint64(0x3000)
	mem := &minidump.Memory{Base: stackBase, Bytes: le64(0, pacTaggedLR(0x400abc))}

	v := cpucontext.NewValidity()
	v.Add("sp")
	v.Add("pc")
	ctx := cpucontext.NewARM64Context(map[string]uint64{"sp": stackBase, "pc": 0x400050}, v, false)
	callee := frame.FromContext(ctx)
	modules := minidump.NewModuleList([]*minidump.Module{{ModuleName: "a.out", Base: 0x400000, ImageSize: 0x10000}})
	provider := symbolize.NewFakeProvider(nil, 4)

	caller := unwind.GetCallerFrame(callee, nil, mem, modules, provider)
	require.NotNil(t, caller)
	require.Equal(t, frame.TrustScan, caller.Trust)
	require.EqualValues(t, 0x400abc, caller.Instruction)
}
