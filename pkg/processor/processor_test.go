package processor_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/processor"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

func amd64Ctx(rip, rsp uint64) *cpucontext.AMD64Context {
	return cpucontext.NewAMD64Context(map[string]uint64{"rip": rip, "rsp": rsp}, cpucontext.AllValid())
}

// putWordAt writes an 8-byte little-endian word at absolute address
// addr into buf, where buf represents memory starting at base.
func putWordAt(buf []byte, base, addr, val uint64) {
	binary.LittleEndian.PutUint64(buf[addr-base:], val)
}

// buildDump assembles a minimal required-streams-only dump.
func buildDump() *minidump.Dump {
	return &minidump.Dump{
		TimeDateStamp: 1234,
		SystemInfo:    &minidump.SystemInfo{OS: minidump.OSLinux, CPU: minidump.CPUAMD64},
		ThreadList:    &minidump.ThreadList{},
	}
}

// TestScenario1_TwoThreadsCFICovered mirrors an amd64 dump with two
// threads, one of them crashing and CFI-walkable one level deep, the
// other context-only.
func TestScenario1_TwoThreadsCFICovered(t *testing.T) {
	d := buildDump()

	module := &minidump.Module{ModuleName: "a.out", Base: 0x400000, ImageSize: 0x100000}
	d.ModuleList = minidump.NewModuleList([]*minidump.Module{module})
	d.UnloadedModuleList = minidump.NewUnloadedModuleList(nil)

	cfiRule := symbolize.CFIRule{Start: 0x400000, End: 0x500000, CFADelta: 16, RAOffset: -8}
	provider := symbolize.NewFakeProvider(map[string]*symbolize.ModuleSymbols{
		"a.out": {CFI: []symbolize.CFIRule{cfiRule}},
	}, 4)

	// Thread A (crashing): rsp=0x7000, CFA = rsp+16 = 0x7010, return
	// address read from CFA-8 = 0x7008.
	stackA := make([]byte, 0x30)
	putWordAt(stackA, 0x7000, 0x7008, 0x400800)
	memA := &minidump.Memory{Base: 0x7000, Bytes: stackA}

	excCtx := amd64Ctx(0x400900, 0x7000)
	d.Exception = minidump.NewException(1 /* A */, 11, 0, 0xdead, excCtx)

	threadA := minidump.NewThread(1, amd64Ctx(0x400900, 0x7000), memA)
	threadB := minidump.NewThread(2, amd64Ctx(0x400950, 0x8000), nil)
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{threadA, threadB}}

	state, err := processor.Process(d, provider, processor.Options{})
	require.NoError(t, err)
	require.Len(t, state.Threads, 2)
	require.True(t, state.HasRequestingThread)
	require.Equal(t, 0, state.RequestingThread, "thread A is index 0")

	a := state.Threads[0]
	require.Len(t, a.Frames, 2, "seed + one CFI-derived caller")
	require.Equal(t, frame.TrustContext, a.Frames[0].Trust)
	require.Equal(t, frame.TrustCFI, a.Frames[1].Trust)
	require.EqualValues(t, 0x400800, a.Frames[1].Instruction)

	b := state.Threads[1]
	require.Len(t, b.Frames, 1, "no stack memory means only the seed frame")
}

// TestScenario2_DumpWriterSkip covers the dump-writer-thread skip rule.
func TestScenario2_DumpWriterSkip(t *testing.T) {
	d := buildDump()
	d.BreakpadInfo = &minidump.BreakpadInfo{HasDumpThreadID: true, DumpThreadID: 9}
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{
		minidump.NewThread(9, amd64Ctx(0x400000, 0x7000), nil),
		minidump.NewThread(10, amd64Ctx(0x400000, 0x7000), nil),
	}}
	provider := symbolize.NewFakeProvider(nil, 1)

	state, err := processor.Process(d, provider, processor.Options{})
	require.NoError(t, err)
	require.Equal(t, frame.CallStackDumpThreadSkipped, state.Threads[0].Info)
	require.Empty(t, state.Threads[0].Frames)
	require.Equal(t, frame.CallStackOk, state.Threads[1].Info)
}

func TestMissingSystemInfo(t *testing.T) {
	d := &minidump.Dump{ThreadList: &minidump.ThreadList{}}
	_, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.ErrorIs(t, err, processor.ErrMissingSystemInfo)
}

func TestMissingThreadList(t *testing.T) {
	d := &minidump.Dump{SystemInfo: &minidump.SystemInfo{}}
	_, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.ErrorIs(t, err, processor.ErrMissingThreadList)
}

// TestScenario4_ExceptionOverridesRequestingThread: Breakpad info
// names B as requesting, the exception stream names A as crashing; A
// must win, and its seed frame must come from the exception context
// rather than the thread's own.
func TestScenario4_ExceptionOverridesRequestingThread(t *testing.T) {
	d := buildDump()
	d.BreakpadInfo = &minidump.BreakpadInfo{HasRequestingThread: true, RequestingThreadID: 2 /* B */}
	d.Exception = minidump.NewException(1 /* A */, 11, 0, 0, amd64Ctx(0x400999, 0x7000))
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{
		minidump.NewThread(1, amd64Ctx(0x400001, 0x7000), nil),
		minidump.NewThread(2, amd64Ctx(0x400002, 0x8000), nil),
	}}

	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	require.True(t, state.HasRequestingThread)
	require.Equal(t, 0, state.RequestingThread, "thread A (index 0) must win over breakpad's thread B")
	require.EqualValues(t, 0x400999, state.Threads[0].Frames[0].Instruction,
		"A's seed frame must come from the exception context, not its own")
}

// TestScenario5_UnloadedModuleAttribution covers §4.6 step 5: a frame
// whose instruction falls in no loaded module but inside an unloaded
// one gets annotated with that module's name and offset.
func TestScenario5_UnloadedModuleAttribution(t *testing.T) {
	d := buildDump()
	d.ModuleList = minidump.NewModuleList(nil)
	d.UnloadedModuleList = minidump.NewUnloadedModuleList([]*minidump.Module{
		{ModuleName: "old.so", Base: 0x500000, ImageSize: 0x1000},
	})
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{
		minidump.NewThread(1, amd64Ctx(0x500010, 0x7000), nil),
	}}

	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	f := state.Threads[0].Frames[0]
	require.Nil(t, f.Module)
	require.Contains(t, f.UnloadedModules, "old.so")
	_, hasOffset := f.UnloadedModules["old.so"][0x10]
	require.True(t, hasOffset)
}

// TestScenario6_MicrocodeExtraction covers parsing the "microcode" key
// out of the optional linux_cpu_info stream.
func TestScenario6_MicrocodeExtraction(t *testing.T) {
	d := buildDump()
	d.LinuxCPUInfo = &minidump.LinuxCPUInfo{Pairs: []minidump.KV{{Key: "microcode", Value: "0xa0671"}}}

	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	require.True(t, state.HasCPUMicrocode)
	require.EqualValues(t, 0xa0671, state.CPUMicrocode)
}

func TestMicrocodeBoundaryCases(t *testing.T) {
	for _, bad := range []string{"a0671", "0xzz", ""} {
		d := buildDump()
		d.LinuxCPUInfo = &minidump.LinuxCPUInfo{Pairs: []minidump.KV{{Key: "microcode", Value: bad}}}
		state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
		require.NoError(t, err)
		require.False(t, state.HasCPUMicrocode, "value %q must not parse", bad)
	}
}

func TestLSBRoundTripBothSpellings(t *testing.T) {
	d := buildDump()
	d.LinuxLSBRelease = &minidump.LinuxLSBRelease{Pairs: []minidump.KV{
		{Key: "DISTRIB_ID", Value: "foo"},
		{Key: "DISTRIB_RELEASE", Value: "1"},
		{Key: "DISTRIB_CODENAME", Value: "bar"},
		{Key: "DISTRIB_DESCRIPTION", Value: "baz"},
	}}
	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	require.Equal(t, "foo", state.LinuxStandardBase.ID)

	d2 := buildDump()
	d2.LinuxLSBRelease = &minidump.LinuxLSBRelease{Pairs: []minidump.KV{
		{Key: "ID", Value: "foo"},
		{Key: "VERSION_ID", Value: "1"},
		{Key: "VERSION_CODENAME", Value: "bar"},
		{Key: "PRETTY_NAME", Value: "baz"},
	}}
	state2, err := processor.Process(d2, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	require.Equal(t, state.LinuxStandardBase, state2.LinuxStandardBase)
}

func TestEmptyModulesListStillTerminates(t *testing.T) {
	d := buildDump()
	d.ModuleList = minidump.NewModuleList(nil)
	d.UnloadedModuleList = minidump.NewUnloadedModuleList(nil)
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{
		minidump.NewThread(1, amd64Ctx(0x400000, 0x7000), nil),
	}}
	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	require.Len(t, state.Threads[0].Frames, 1)
	require.Nil(t, state.Threads[0].Frames[0].Module)
}

// TestScenario7_LastErrorResolvedFromTEB covers §4.6 step 4: a
// thread's TEB address resolves through the dump-wide memory list to
// its LastErrorValue DWORD.
func TestScenario7_LastErrorResolvedFromTEB(t *testing.T) {
	d := buildDump()
	d.SystemInfo = &minidump.SystemInfo{OS: minidump.OSWindows, CPU: minidump.CPUAMD64}

	teb := uint64(0x7ff000)
	tebPage := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(tebPage[0x68:], 0x57 /* ERROR_INVALID_PARAMETER */)
	d.MemoryList = &minidump.MemoryList{Regions: []*minidump.Memory{{Base: teb, Bytes: tebPage}}}

	th := minidump.NewThread(1, amd64Ctx(0x400000, 0x7000), nil)
	th.SetTEB(teb)
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{th}}

	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	require.True(t, state.Threads[0].HasLastError)
	require.EqualValues(t, 0x57, state.Threads[0].LastErrorValue)
}

func TestLastErrorAbsentWithoutTEBOrMemory(t *testing.T) {
	d := buildDump()
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{
		minidump.NewThread(1, amd64Ctx(0x400000, 0x7000), nil),
	}}
	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	require.False(t, state.Threads[0].HasLastError)
}

func TestIdempotenceExceptSymbolStats(t *testing.T) {
	d := buildDump()
	d.ModuleList = minidump.NewModuleList([]*minidump.Module{{ModuleName: "a.out", Base: 0x400000, ImageSize: 0x100000}})
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{
		minidump.NewThread(1, amd64Ctx(0x400000, 0x7000), nil),
	}}
	provider := symbolize.NewFakeProvider(nil, 1)

	s1, err := processor.Process(d, provider, processor.Options{})
	require.NoError(t, err)
	s2, err := processor.Process(d, provider, processor.Options{})
	require.NoError(t, err)

	require.Equal(t, len(s1.Threads), len(s2.Threads))
	require.Equal(t, s1.Threads[0].Frames[0].Instruction, s2.Threads[0].Frames[0].Instruction)
	// Symbol-provider query counters accumulate across calls on a
	// shared provider, so they are explicitly excluded from the
	// idempotence guarantee.
	require.NotEqual(t, s1.SymbolStats, s2.SymbolStats)
}

func TestProcessResolvesSymbolSearchPaths(t *testing.T) {
	d := buildDump()
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{
		minidump.NewThread(1, amd64Ctx(0x400000, 0x7000), nil),
	}}

	opts := processor.Options{SymbolSearchPath: "/opt/symbols /var/symbols"}

	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), opts)
	require.NoError(t, err)
	require.Equal(t, []string{"/opt/symbols", "/var/symbols"}, state.SymbolSearchPaths)
}

func TestProcessLeavesSymbolSearchPathsEmptyByDefault(t *testing.T) {
	d := buildDump()
	d.ThreadList = &minidump.ThreadList{Threads: []*minidump.Thread{
		minidump.NewThread(1, amd64Ctx(0x400000, 0x7000), nil),
	}}
	state, err := processor.Process(d, symbolize.NewFakeProvider(nil, 1), processor.Options{})
	require.NoError(t, err)
	require.Empty(t, state.SymbolSearchPaths)
}
