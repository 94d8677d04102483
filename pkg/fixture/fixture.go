// Package fixture builds in-memory minidump.Dump and
// symbolize.FakeProvider values from a declarative YAML description.
// The binary minidump container format and the production symbol
// supplier are both out-of-scope external collaborators (§1); this
// package is the seam a CLI or test suite uses instead, the same way
// FakeProvider stands in for a production SymbolProvider.
package fixture

import (
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/crashwalk/mdwalk/pkg/cpucontext"
	"github.com/crashwalk/mdwalk/pkg/dumpio"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
)

// Doc is the top-level YAML shape. Every field mirrors a minidump
// stream named in §4.6; absent fields degrade exactly the way an
// absent stream would in a real dump (§7 tier 2).
type Doc struct {
	TimeDateStamp uint32 `yaml:"time_date_stamp"`

	System struct {
		OS        string `yaml:"os"`
		OSVersion string `yaml:"os_version"`
		OSBuild   string `yaml:"os_build"`
		CPU       string `yaml:"cpu"`
		CPUInfo   string `yaml:"cpu_info"`
		CPUCount  int    `yaml:"cpu_count"`
	} `yaml:"system_info"`

	LinuxCPUInfo    []KV `yaml:"linux_cpu_info"`
	LinuxLSBRelease []KV `yaml:"linux_lsb_release"`

	Misc *struct {
		ProcessID uint32 `yaml:"process_id"`
		CreateUTC int64  `yaml:"process_create_utc"`
	} `yaml:"misc_info"`

	Breakpad *struct {
		DumpThreadID       *uint32 `yaml:"dump_thread_id"`
		RequestingThreadID *uint32 `yaml:"requesting_thread_id"`
	} `yaml:"breakpad_info"`

	Exception *struct {
		ThreadID     uint32            `yaml:"thread_id"`
		Code         uint32            `yaml:"code"`
		Flags        uint32            `yaml:"flags"`
		FaultAddress uint64            `yaml:"fault_address"`
		Context      map[string]uint64 `yaml:"context"`
	} `yaml:"exception"`

	Modules         []ModuleDef `yaml:"modules"`
	UnloadedModules []ModuleDef `yaml:"unloaded_modules"`

	// MemoryRegions describes the dump-wide captured-memory stream
	// (§4.6's memory list), distinct from a thread's own stack memory.
	// The last-error lookup consults this to find a thread's TEB page.
	MemoryRegions []MemoryRegionDef `yaml:"memory_regions"`

	Threads []ThreadDef `yaml:"threads"`

	ThreadNames map[uint32]string `yaml:"thread_names"`

	Symbols map[string]*symbolize.ModuleSymbols `yaml:"symbols"`
}

type KV struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type ModuleDef struct {
	Name string `yaml:"name"`
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// MemoryRegionDef is one captured range in the dump-wide memory list.
type MemoryRegionDef struct {
	Base uint64 `yaml:"base"`
	Hex  string `yaml:"hex"`
}

type ThreadDef struct {
	ThreadID uint32            `yaml:"thread_id"`
	Arch     string            `yaml:"arch"`
	Context  map[string]uint64 `yaml:"context"`
	// StackBase/StackHex describe the thread's captured stack
	// memory; absent means "no stack memory for this thread" (§8's
	// boundary case).
	StackBase uint64 `yaml:"stack_base"`
	StackHex  string `yaml:"stack_hex"`
	// TEB is the thread's Thread Environment Block address, used to
	// resolve the last-error value (§4.6 step 4). Absent means the
	// platform has no TEB concept (the common Linux/Mac case).
	TEB *uint64 `yaml:"teb"`
}

// Load reads and decodes a YAML fixture file. The file is memory-mapped
// via pkg/dumpio rather than read into a heap-allocated buffer — the
// same read-only-mapping discipline a real minidump file would get,
// even though a fixture is orders of magnitude smaller.
func Load(path string) (*Doc, error) {
	buf, err := dumpio.Open(path)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	var doc Doc
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	return &doc, nil
}

// Build turns the decoded Doc into a *minidump.Dump and a
// *symbolize.FakeProvider ready to hand to pkg/processor.Process.
func (d *Doc) Build() (*minidump.Dump, *symbolize.FakeProvider, error) {
	sysOS := parseOS(d.System.OS)
	sysCPU := parseCPU(d.System.CPU)

	dump := &minidump.Dump{
		TimeDateStamp: d.TimeDateStamp,
		SystemInfo: &minidump.SystemInfo{
			OS:        sysOS,
			OSVersion: d.System.OSVersion,
			OSBuild:   d.System.OSBuild,
			CPU:       sysCPU,
			CPUInfo:   d.System.CPUInfo,
			CPUCount:  d.System.CPUCount,
		},
	}

	if len(d.LinuxCPUInfo) > 0 {
		dump.LinuxCPUInfo = &minidump.LinuxCPUInfo{Pairs: toPairs(d.LinuxCPUInfo)}
	}
	if len(d.LinuxLSBRelease) > 0 {
		dump.LinuxLSBRelease = &minidump.LinuxLSBRelease{Pairs: toPairs(d.LinuxLSBRelease)}
	}
	if d.Misc != nil {
		dump.MiscInfo = &minidump.MiscInfo{
			HasProcessID: true, ProcessID: d.Misc.ProcessID,
			HasCreateTime: true, ProcessCreateUTC: d.Misc.CreateUTC,
		}
	}
	if d.Breakpad != nil {
		bp := &minidump.BreakpadInfo{}
		if d.Breakpad.DumpThreadID != nil {
			bp.HasDumpThreadID, bp.DumpThreadID = true, *d.Breakpad.DumpThreadID
		}
		if d.Breakpad.RequestingThreadID != nil {
			bp.HasRequestingThread, bp.RequestingThreadID = true, *d.Breakpad.RequestingThreadID
		}
		dump.BreakpadInfo = bp
	}
	if d.Exception != nil {
		ctx, err := buildContext("", d.Exception.Context)
		if err != nil {
			return nil, nil, err
		}
		dump.Exception = minidump.NewException(d.Exception.ThreadID, d.Exception.Code, d.Exception.Flags, d.Exception.FaultAddress, ctx)
	}

	loadedMods := make([]*minidump.Module, 0, len(d.Modules))
	for _, m := range d.Modules {
		loadedMods = append(loadedMods, &minidump.Module{ModuleName: m.Name, Base: m.Base, ImageSize: m.Size})
	}
	dump.ModuleList = minidump.NewModuleList(loadedMods)

	unloadedMods := make([]*minidump.Module, 0, len(d.UnloadedModules))
	for _, m := range d.UnloadedModules {
		unloadedMods = append(unloadedMods, &minidump.Module{ModuleName: m.Name, Base: m.Base, ImageSize: m.Size})
	}
	dump.UnloadedModuleList = minidump.NewUnloadedModuleList(unloadedMods)

	if len(d.ThreadNames) > 0 {
		dump.ThreadNames = minidump.NewThreadNames(d.ThreadNames)
	}

	var regions []*minidump.Memory
	for _, r := range d.MemoryRegions {
		bytes, err := hex.DecodeString(r.Hex)
		if err != nil {
			return nil, nil, err
		}
		regions = append(regions, &minidump.Memory{Base: r.Base, Bytes: bytes})
	}

	threads := make([]*minidump.Thread, 0, len(d.Threads))
	for _, t := range d.Threads {
		ctx, err := buildContext(t.Arch, t.Context)
		if err != nil {
			return nil, nil, err
		}
		var stack *minidump.Memory
		if t.StackHex != "" {
			bytes, err := hex.DecodeString(t.StackHex)
			if err != nil {
				return nil, nil, err
			}
			stack = &minidump.Memory{Base: t.StackBase, Bytes: bytes}
		}
		th := minidump.NewThread(t.ThreadID, ctx, stack)
		if t.TEB != nil {
			th.SetTEB(*t.TEB)
		}
		threads = append(threads, th)
	}
	dump.ThreadList = &minidump.ThreadList{Threads: threads}
	if len(regions) > 0 {
		dump.MemoryList = &minidump.MemoryList{Regions: regions}
	}

	provider := symbolize.NewFakeProvider(d.Symbols, 32)
	return dump, provider, nil
}

func toPairs(kvs []KV) []minidump.KV {
	out := make([]minidump.KV, len(kvs))
	for i, kv := range kvs {
		out[i] = minidump.KV{Key: kv.Key, Value: kv.Value}
	}
	return out
}

func parseOS(s string) minidump.OS {
	switch s {
	case "linux":
		return minidump.OSLinux
	case "windows":
		return minidump.OSWindows
	case "macos":
		return minidump.OSMacOS
	case "android":
		return minidump.OSAndroid
	default:
		return minidump.OSUnknown
	}
}

func parseCPU(s string) minidump.CPU {
	switch s {
	case "x86":
		return minidump.CPUX86
	case "amd64":
		return minidump.CPUAMD64
	case "arm":
		return minidump.CPUARM
	case "arm64":
		return minidump.CPUARM64
	default:
		return minidump.CPUUnknown
	}
}

// buildContext constructs the right cpucontext.CPUContext variant. If
// archHint is empty, it is inferred from the register names present
// (rip/rsp -> amd64, eip/esp -> x86, pc+lr+sp -> arm/arm64 disambiguated
// by presence of an "x0"-style register).
func buildContext(archHint string, regs map[string]uint64) (cpucontext.CPUContext, error) {
	if regs == nil {
		return nil, nil
	}
	v := cpucontext.AllValid()
	switch inferArch(archHint, regs) {
	case "amd64":
		return cpucontext.NewAMD64Context(regs, v), nil
	case "x86":
		return cpucontext.NewX86Context(regs, v), nil
	case "arm":
		return cpucontext.NewARMContext(regs, v), nil
	case "arm64":
		return cpucontext.NewARM64Context(regs, v, false), nil
	case "arm64_old":
		return cpucontext.NewARM64Context(regs, v, true), nil
	default:
		return nil, fmt.Errorf("fixture: cannot infer architecture from context (hint=%q)", archHint)
	}
}

func inferArch(hint string, regs map[string]uint64) string {
	if hint != "" {
		return hint
	}
	if _, ok := regs["rip"]; ok {
		return "amd64"
	}
	if _, ok := regs["eip"]; ok {
		return "x86"
	}
	if _, ok := regs["x0"]; ok {
		return "arm64"
	}
	if _, ok := regs["r0"]; ok {
		return "arm"
	}
	return ""
}

