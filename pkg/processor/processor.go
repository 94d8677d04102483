// Package processor implements the processor orchestrator (C6): pulls
// every stream §4.6 cares about out of a parsed minidump, derives the
// system-info/crash-reason/requesting-thread fields, drives the
// per-thread walker for every thread, and assembles the final
// ProcessState.
package processor

import (
	"time"

	"github.com/crashwalk/mdwalk/internal/logflags"
	"github.com/crashwalk/mdwalk/pkg/evil"
	"github.com/crashwalk/mdwalk/pkg/frame"
	"github.com/crashwalk/mdwalk/pkg/minidump"
	"github.com/crashwalk/mdwalk/pkg/symbolize"
	"github.com/crashwalk/mdwalk/pkg/threadwalk"
)

// Process implements §4.6's process(dump, provider, options) contract.
func Process(dump *minidump.Dump, provider symbolize.SymbolProvider, options Options) (*ProcessState, error) {
	log := logflags.Processor()

	if dump.ThreadList == nil {
		return nil, ErrMissingThreadList
	}
	if dump.SystemInfo == nil {
		return nil, ErrMissingSystemInfo
	}

	state := &ProcessState{
		Time:             time.Unix(int64(dump.TimeDateStamp), 0).UTC(),
		SystemInfo:       *dump.SystemInfo,
		CertInfo:         map[string]evil.CertInfo{},
		RequestingThread: -1,
	}

	if paths, err := options.SearchPaths(); err != nil {
		log.WithError(err).Warn("failed to tokenize symbol search path")
	} else if len(paths) > 0 {
		state.SymbolSearchPaths = paths
		logflags.Symbolize().WithField("paths", paths).Debug("resolved symbol search paths")
	}

	if v, ok := microcodeVersion(dump.LinuxCPUInfo); ok {
		state.CPUMicrocode, state.HasCPUMicrocode = v, true
	}
	state.LinuxStandardBase = buildLinuxStandardBase(dump.LinuxLSBRelease)
	state.MacCrashInfo = dump.MacCrashInfo

	if dump.MiscInfo != nil {
		if dump.MiscInfo.HasProcessID {
			state.ProcessID, state.HasProcessID = dump.MiscInfo.ProcessID, true
		}
		if dump.MiscInfo.HasCreateTime {
			state.ProcessCreateUTC, state.HasCreateTime = dump.MiscInfo.ProcessCreateUTC, true
		}
	}

	var dumpThreadID uint32
	var hasDumpThread bool
	var requestingThreadID uint32
	var hasRequestingThreadID bool
	if dump.BreakpadInfo != nil {
		if dump.BreakpadInfo.HasDumpThreadID {
			dumpThreadID, hasDumpThread = dump.BreakpadInfo.DumpThreadID, true
		}
		if dump.BreakpadInfo.HasRequestingThread {
			requestingThreadID, hasRequestingThreadID = dump.BreakpadInfo.RequestingThreadID, true
		}
	}

	var crashingThreadID uint32
	var hasCrashingThreadID bool
	var exceptionCtx = dump.Exception
	if exceptionCtx != nil {
		state.CrashReason = exceptionCtx.CrashReason(dump.SystemInfo.OS)
		state.CrashAddress = exceptionCtx.FaultAddress
		state.HasCrash = true
		crashingThreadID, hasCrashingThreadID = exceptionCtx.CrashingThreadID, true
	}

	// §4.6: "prefer the exception stream's crashing thread over the
	// Breakpad-info stream's requesting thread id".
	wantThreadID, haveWantThreadID := crashingThreadID, hasCrashingThreadID
	if !haveWantThreadID {
		wantThreadID, haveWantThreadID = requestingThreadID, hasRequestingThreadID
	}

	modules := dump.ModuleList
	if modules == nil {
		modules = minidump.NewModuleList(nil)
	}
	unloaded := dump.UnloadedModuleList
	if unloaded == nil {
		unloaded = minidump.NewUnloadedModuleList(nil)
	}
	state.Modules = modules
	state.UnloadedModules = unloaded

	sideChannel := evil.Empty()
	if options.EvilJSON != "" {
		if info, err := evil.Load(options.EvilJSON); err == nil {
			sideChannel = info
		} else {
			log.WithError(err).Warn("failed to read evil json side channel")
		}
	}
	for name, ci := range sideChannel.Certs {
		state.CertInfo[name] = ci
	}

	for i, th := range dump.ThreadList.Threads {
		if hasDumpThread && th.ThreadID == dumpThreadID {
			state.Threads = append(state.Threads, frame.WithInfo(th.ThreadID, frame.CallStackDumpThreadSkipped))
			continue
		}

		ctx := th.Context()
		if haveWantThreadID && th.ThreadID == wantThreadID {
			state.RequestingThread, state.HasRequestingThread = i, true
			if exceptionCtx != nil && exceptionCtx.Context() != nil {
				ctx = exceptionCtx.Context()
			}
		}

		stack := threadwalk.WalkStack(ctx, th.StackMemory(), modules, provider)
		stack.ThreadID = th.ThreadID

		if v, ok := th.LastError(dump.SystemInfo.CPU, dump.MemoryList); ok {
			stack.LastErrorValue, stack.HasLastError = v, true
		}

		annotateUnloadedModules(stack, unloaded)

		name, ok := dump.ThreadNames.GetName(th.ThreadID)
		if !ok {
			name, ok = sideChannel.GetName(th.ThreadID)
		}
		if ok {
			stack.ThreadName = name
		}

		state.Threads = append(state.Threads, stack)
	}

	state.UnknownStreams = dump.UnknownStreams()
	state.UnimplementedStreams = dump.UnimplementedStreams()
	state.SymbolStats = provider.Stats()

	return state, nil
}

// annotateUnloadedModules implements §4.6 step 5: for every frame
// without a loaded module, record every unloaded module whose
// interval contains the instruction, keyed by name, with the set of
// instruction offsets.
func annotateUnloadedModules(stack *frame.CallStack, unloaded *minidump.UnloadedModuleList) {
	for _, f := range stack.Frames {
		if f.Module != nil {
			continue
		}
		hits := unloaded.ModulesAtAddress(f.Instruction)
		if len(hits) == 0 {
			continue
		}
		out := make(map[string]map[uint64]struct{}, len(hits))
		for _, m := range hits {
			offsets, ok := out[m.Name()]
			if !ok {
				offsets = map[uint64]struct{}{}
				out[m.Name()] = offsets
			}
			offsets[f.Instruction-m.BaseOfImage()] = struct{}{}
		}
		f.UnloadedModules = out
	}
}
