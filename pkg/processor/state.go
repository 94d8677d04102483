package processor

import (
	"time"

	"github.com/crashwalk/mdwalk/pkg/evil"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

// ProcessState is the final report (§3): everything the orchestrator
// derived from a single dump plus the provider it was processed with.
type ProcessState struct {
	ProcessID        uint32
	HasProcessID     bool
	Time             time.Time
	ProcessCreateUTC int64
	HasCreateTime    bool

	CrashReason   string
	HasCrash      bool
	CrashAddress  uint64
	Assertion     string
	HasAssertion  bool

	// RequestingThread is the index into Threads of the thread that
	// caused the dump to be written, preferring the exception stream's
	// crashing-thread id over the Breakpad-info requesting-thread id
	// (§4.6).
	RequestingThread    int
	HasRequestingThread bool

	SystemInfo        minidump.SystemInfo
	LinuxStandardBase *minidump.LinuxStandardBase
	CPUMicrocode      uint64
	HasCPUMicrocode   bool
	MacCrashInfo      *minidump.MacCrashInfo

	Threads []*frame.CallStack

	Modules         *minidump.ModuleList
	UnloadedModules *minidump.UnloadedModuleList

	CertInfo map[string]evil.CertInfo

	UnknownStreams       []uint32
	UnimplementedStreams []minidump.StreamType
	SymbolStats          symbolize.SymbolStats

	// SymbolSearchPaths is options.SymbolSearchPath tokenized by
	// Options.SearchPaths, surfaced here so a caller can see what the
	// provider was told to search even though this core has no
	// filesystem-backed symbol supplier of its own (§6).
	SymbolSearchPaths []string
}
