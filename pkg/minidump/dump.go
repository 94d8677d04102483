package minidump

// StreamType tags the handful of stream kinds the processor consults.
// The real minidump format defines many more (MDRawDirectory entries
// for tool-specific or vendor streams); those surface only through
// UnknownStreams/UnimplementedStreams.
type StreamType uint32

const (
	StreamThreadList StreamType = iota
	StreamThreadNames
	StreamSystemInfo
	StreamLinuxLSBRelease
	StreamLinuxCPUInfo
	StreamMiscInfo
	StreamBreakpadInfo
	StreamException
	StreamModuleList
	StreamUnloadedModuleList
	StreamMemoryList
	StreamMemoryInfoList
	StreamLinuxMaps
	StreamMacCrashInfo
)

// Dump is the read-only, external-collaborator view of a parsed
// minidump this core depends on (§1 "out of scope: the minidump
// container parser"). It exposes exactly the streams §4.6 consumes.
//
// A concrete Dump is expected to be backed by a read-only byte buffer
// (such as a pkg/dumpio.Buffer) that outlives every derived
// view, per §3's ownership rule.
type Dump struct {
	TimeDateStamp uint32

	ThreadList         *ThreadList // required
	SystemInfo         *SystemInfo // required
	ThreadNames        *ThreadNames
	LinuxLSBRelease    *LinuxLSBRelease
	LinuxCPUInfo       *LinuxCPUInfo
	MiscInfo           *MiscInfo
	BreakpadInfo       *BreakpadInfo
	Exception          *Exception
	ModuleList         *ModuleList
	UnloadedModuleList *UnloadedModuleList
	MemoryList         *MemoryList
	MemoryInfoList     *MemoryInfoList
	LinuxMaps          *LinuxMaps
	MacCrashInfo       *MacCrashInfo

	unknownStreams       []uint32
	unimplementedStreams []StreamType
}

func (d *Dump) UnknownStreams() []uint32           { return d.unknownStreams }
func (d *Dump) UnimplementedStreams() []StreamType { return d.unimplementedStreams }

// SetDiagnosticStreams records the numeric types of streams this dump
// carried that the core doesn't recognize (unknown, identified only
// by their raw directory type) or recognizes but doesn't parse
// (unimplemented, e.g. StreamMemoryInfoList/StreamLinuxMaps) — purely
// for ProcessState's inventory.
func (d *Dump) SetDiagnosticStreams(unknown []uint32, unimplemented []StreamType) {
	d.unknownStreams = unknown
	d.unimplementedStreams = unimplemented
}
