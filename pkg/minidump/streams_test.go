package minidump_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crashwalk/mdwalk/pkg/minidump"
)

func tebMemory(base uint64, offset uint64, val uint32) *minidump.MemoryList {
	page := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(page[offset:], val)
	return &minidump.MemoryList{Regions: []*minidump.Memory{{Base: base, Bytes: page}}}
}

func TestThreadLastErrorAMD64Offset(t *testing.T) {
	th := minidump.NewThread(1, nil, nil)
	th.SetTEB(0x7ff000)
	mem := tebMemory(0x7ff000, 0x68, 0xdeadbeef)

	v, ok := th.LastError(minidump.CPUAMD64, mem)
	require.True(t, ok)
	require.EqualValues(t, 0xdeadbeef, v)
}

func TestThreadLastErrorX86Offset(t *testing.T) {
	th := minidump.NewThread(1, nil, nil)
	th.SetTEB(0x400000)
	mem := tebMemory(0x400000, 0x34, 5)

	v, ok := th.LastError(minidump.CPUX86, mem)
	require.True(t, ok)
	require.EqualValues(t, 5, v)
}

func TestThreadLastErrorWithoutTEB(t *testing.T) {
	th := minidump.NewThread(1, nil, nil)
	mem := tebMemory(0x7ff000, 0x68, 1)
	_, ok := th.LastError(minidump.CPUAMD64, mem)
	require.False(t, ok, "a thread with no known TEB must report ok=false")
}

func TestThreadLastErrorUnsupportedCPU(t *testing.T) {
	th := minidump.NewThread(1, nil, nil)
	th.SetTEB(0x7ff000)
	mem := tebMemory(0x7ff000, 0x68, 1)
	_, ok := th.LastError(minidump.CPUARM, mem)
	require.False(t, ok, "ARM has no modeled TEB layout here")
}

func TestThreadLastErrorMissingMemoryPage(t *testing.T) {
	th := minidump.NewThread(1, nil, nil)
	th.SetTEB(0x7ff000)
	_, ok := th.LastError(minidump.CPUAMD64, &minidump.MemoryList{})
	require.False(t, ok, "TEB address not captured in the memory list must report ok=false")
}
