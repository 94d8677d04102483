package threadwalk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
	"github.com/crashwalk/mdwalk/pkg/threadwalk"
)

func TestWalkStackNilContextYieldsMissingContext(t *testing.T) {
	provider := symbolize.NewFakeProvider(nil, 1)
	modules := minidump.NewModuleList(nil)

	stack := threadwalk.WalkStack(nil, nil, modules, provider)
	require.Equal(t, frame.CallStackMissingContext, stack.Info)
	require.Empty(t, stack.Frames)
}

func TestWalkStackNoStackMemoryYieldsSeedOnly(t *testing.T) {
	ctx := cpucontext.NewAMD64Context(map[string]uint64{"rip": 0x400050, "rsp": 0x1000, "rbp": 0}, cpucontext.AllValid())
	provider := symbolize.NewFakeProvider(nil, 1)
	modules := minidump.NewModuleList(nil)

	stack := threadwalk.WalkStack(ctx, nil, modules, provider)
	require.Equal(t, frame.CallStackOk, stack.Info)
	require.Len(t, stack.Frames, 1)
	require.Equal(t, frame.TrustContext, stack.Frames[0].Trust)
}

func TestWalkStackSPStrictlyIncreasing(t *testing.T) {
	// Three-level rbp chain, each level bumping rsp further up.
	base := uint64(0x8000)
	buf := make([]byte, 64)
	putWord := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	// frame at base: [rbp]=base+16, [rbp+8]=0x400100
	putWord(0, base+16)
	putWord(8, 0x400100)
	// frame at base+16: [rbp]=0, [rbp+8]=0x400200 (terminates: next rbp=0)
	putWord(16, 0)
	putWord(24, 0x400200)

	mem := &minidump.Memory{Base: base, Bytes: buf}
	modules := minidump.NewModuleList([]*minidump.Module{{ModuleName: "a.out", Base: 0x400000, ImageSize: 0x10000}})
	provider := symbolize.NewFakeProvider(nil, 1)

	ctx := cpucontext.NewAMD64Context(map[string]uint64{"rbp": base, "rsp": base - 8, "rip": 0x400050}, cpucontext.AllValid())
	stack := threadwalk.WalkStack(ctx, mem, modules, provider)

	require.Equal(t, frame.CallStackOk, stack.Info)
	require.GreaterOrEqual(t, len(stack.Frames), 2)

	var lastSP uint64
	for i, f := range stack.Frames {
		sp, ok := f.Context.GetRegister(f.Context.StackPointerRegisterName(), *f.Context.Validity())
		require.True(t, ok)
		if i > 0 {
			require.Greater(t, sp, lastSP, "SP must strictly increase frame over frame")
		}
		lastSP = sp
	}
}
