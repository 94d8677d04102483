package minidump

import (
	"github.com/crashwalk/mdwalk/pkg/cpucontext"
)

// OS and CPU enumerate the handful of platform combinations the
// unwinders care about; the minidump container itself carries a much
// larger raw enum, but the core only ever branches on these.
type OS uint8

const (
	OSUnknown OS = iota
	OSLinux
	OSWindows
	OSMacOS
	OSAndroid
)

func (o OS) String() string {
	switch o {
	case OSLinux:
		return "linux"
	case OSWindows:
		return "windows"
	case OSMacOS:
		return "macos"
	case OSAndroid:
		return "android"
	default:
		return "unknown"
	}
}

type CPU uint8

const (
	CPUUnknown CPU = iota
	CPUX86
	CPUAMD64
	CPUARM
	CPUARM64
)

func (c CPU) String() string {
	switch c {
	case CPUX86:
		return "x86"
	case CPUAMD64:
		return "amd64"
	case CPUARM:
		return "arm"
	case CPUARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// SystemInfo is the required system-info stream (§4.6); absence is a
// fatal MissingSystemInfo.
type SystemInfo struct {
	OS        OS
	OSVersion string
	OSBuild   string
	CPU       CPU
	CPUInfo   string
	CPUCount  int
}

// KV is one key/value pair from a linux_cpu_info or linux_lsb_release
// stream — both are stored in the dump as raw NUL-separated text,
// which the orchestrator parses into these pairs before pulling out
// the handful of keys it cares about (§4.6).
type KV struct {
	Key   string
	Value string
}

// LinuxCPUInfo is the optional /proc/cpuinfo capture.
type LinuxCPUInfo struct {
	Pairs []KV
}

// LinuxLSBRelease is the optional /etc/lsb-release or os-release capture.
type LinuxLSBRelease struct {
	Pairs []KV
}

// LinuxStandardBase is the derived, structured form the orchestrator
// builds out of a LinuxLSBRelease stream.
type LinuxStandardBase struct {
	ID          string
	Release     string
	Codename    string
	Description string
}

// MiscInfo is the optional MISC_INFO stream.
type MiscInfo struct {
	HasProcessID     bool
	ProcessID        uint32
	HasCreateTime    bool
	ProcessCreateUTC int64 // unix seconds
}

// BreakpadInfo is the optional MD_BREAKPAD_INFO stream identifying
// the thread that physically wrote the dump and the thread that
// requested it be written.
type BreakpadInfo struct {
	HasDumpThreadID     bool
	DumpThreadID        uint32
	HasRequestingThread bool
	RequestingThreadID  uint32
}

// Exception is the optional exception stream.
type Exception struct {
	CrashingThreadID uint32
	ExceptionCode    uint32
	ExceptionFlags   uint32
	FaultAddress     uint64
	context          cpucontext.CPUContext
}

func NewException(threadID uint32, code, flags uint32, faultAddr uint64, ctx cpucontext.CPUContext) *Exception {
	return &Exception{CrashingThreadID: threadID, ExceptionCode: code, ExceptionFlags: flags, FaultAddress: faultAddr, context: ctx}
}

// Context returns the CPU register state captured at the moment of
// the exception, if the stream carried one.
func (e *Exception) Context() cpucontext.CPUContext { return e.context }

// CrashReason renders a short human string for the crash reason; real
// formatting is OS/exception-code specific, collapsed here to the
// handful of forms the tests exercise.
func (e *Exception) CrashReason(os OS) string {
	if e == nil {
		return ""
	}
	return exceptionCodeName(os, e.ExceptionCode)
}

func exceptionCodeName(os OS, code uint32) string {
	switch {
	case os == OSLinux && code == 11:
		return "SIGSEGV"
	case os == OSLinux && code == 6:
		return "SIGABRT"
	case os == OSLinux && code == 4:
		return "SIGILL"
	case os == OSLinux && code == 8:
		return "SIGFPE"
	default:
		return "UNKNOWN"
	}
}

// ThreadNames is the optional thread-names stream.
type ThreadNames struct {
	byID map[uint32]string
}

func NewThreadNames(m map[uint32]string) *ThreadNames { return &ThreadNames{byID: m} }

func (t *ThreadNames) GetName(id uint32) (string, bool) {
	if t == nil || t.byID == nil {
		return "", false
	}
	name, ok := t.byID[id]
	return name, ok
}

// Memory is one contiguous range of thread or process memory captured
// in the dump.
type Memory struct {
	Base  uint64
	Bytes []byte
}

func (m *Memory) contains(addr uint64, size int) bool {
	if m == nil {
		return false
	}
	end := m.Base + uint64(len(m.Bytes))
	return addr >= m.Base && addr+uint64(size) <= end
}

// ReadWordAt reads a little-endian word of the given size (4 or 8
// bytes) at addr, or ok=false if out of range.
func (m *Memory) ReadWordAt(addr uint64, size int) (uint64, bool) {
	if !m.contains(addr, size) {
		return 0, false
	}
	off := addr - m.Base
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(m.Bytes[int(off)+i]) << (8 * i)
	}
	return v, true
}

// MemoryList holds every captured memory range in a dump.
type MemoryList struct {
	Regions []*Memory
}

// MemoryAt finds the captured region (if any) containing addr.
func (l *MemoryList) MemoryAt(addr uint64) *Memory {
	if l == nil {
		return nil
	}
	for _, m := range l.Regions {
		if addr >= m.Base && addr < m.Base+uint64(len(m.Bytes)) {
			return m
		}
	}
	return nil
}

// MemoryInfoList and LinuxMaps are carried through unparsed — §9's
// Open Question about accepting executable anonymous mappings during
// scan validation is explicitly left as a future extension, so
// SPEC_FULL keeps the shape without wiring it into the validity
// oracle.
type MemoryInfoList struct{ Raw []byte }
type LinuxMaps struct{ Raw []byte }

// MacCrashInfo carries macOS's CrashInfo payload unparsed, matching
// the original's `.raw` passthrough (SPEC_FULL's supplemented-features note).
type MacCrashInfo struct{ Raw []byte }

// Thread is one entry of the required thread-list stream.
type Thread struct {
	ThreadID    uint32
	context     cpucontext.CPUContext
	stackMemory *Memory

	teb    uint64
	hasTEB bool
}

func NewThread(id uint32, ctx cpucontext.CPUContext, stack *Memory) *Thread {
	return &Thread{ThreadID: id, context: ctx, stackMemory: stack}
}

func (t *Thread) Context() cpucontext.CPUContext { return t.context }
func (t *Thread) StackMemory() *Memory            { return t.stackMemory }

// SetTEB records the raw thread's Thread Environment Block address, as
// carried by the minidump container's per-platform thread record. A
// thread with no known TEB (most Linux/Mac dumps) simply never calls
// this, and LastError reports ok=false.
func (t *Thread) SetTEB(addr uint64) {
	t.teb, t.hasTEB = addr, true
}

// tebLastErrorOffset is the byte offset of the LastErrorValue DWORD
// within the Windows Thread Environment Block, which is the only
// platform that defines this concept at all (§4.6 step 4). ARM/ARM64
// dumps processed by this core target Linux/Android crashes, which
// have no TEB, so those architectures are left unsupported here rather
// than guessing at a WOW64-era offset nothing in this tree can verify.
func tebLastErrorOffset(cpu CPU) (uint64, bool) {
	switch cpu {
	case CPUX86:
		return 0x34, true
	case CPUAMD64:
		return 0x68, true
	default:
		return 0, false
	}
}

// LastError resolves the thread's last-error value out of its TEB, per
// §4.6 step 4. It requires a known TEB address, a supported cpu, and a
// memory list that actually captured the TEB page; any of those being
// absent reports ok=false rather than an error, matching the
// best-effort nature of every other derived field in §4.6.
func (t *Thread) LastError(cpu CPU, memory *MemoryList) (uint32, bool) {
	if t == nil || !t.hasTEB || memory == nil {
		return 0, false
	}
	offset, ok := tebLastErrorOffset(cpu)
	if !ok {
		return 0, false
	}
	mem := memory.MemoryAt(t.teb + offset)
	if mem == nil {
		return 0, false
	}
	v, ok := mem.ReadWordAt(t.teb+offset, 4)
	if !ok {
		return 0, false
	}
	return uint32(v), true
}

// ThreadList is the required thread-list stream.
type ThreadList struct {
	Threads []*Thread
}
