package processor

import (
	"strconv"
	"strings"

	"github.com/crashwalk/mdwalk/pkg/minidump"
)

// microcodeVersion implements §4.6's CPU microcode derivation: find
// the "microcode" key in the Linux CPU info stream, parse its value as
// a hex integer after stripping a leading "0x". Any other shape
// (absent key, missing prefix, non-hex digits) yields ok=false — the
// boundary case of §8.
func microcodeVersion(info *minidump.LinuxCPUInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	for _, kv := range info.Pairs {
		if kv.Key != "microcode" {
			continue
		}
		hexPart, ok := strings.CutPrefix(strings.TrimSpace(kv.Value), "0x")
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseUint(hexPart, 16, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// buildLinuxStandardBase implements §4.6's LSB derivation, accepting
// either the DISTRIB_* or the /etc/os-release spelling for each of the
// four fields it extracts (§8's LSB round-trip property).
func buildLinuxStandardBase(rel *minidump.LinuxLSBRelease) *minidump.LinuxStandardBase {
	if rel == nil {
		return nil
	}
	lsb := &minidump.LinuxStandardBase{}
	for _, kv := range rel.Pairs {
		switch kv.Key {
		case "DISTRIB_ID", "ID":
			lsb.ID = kv.Value
		case "DISTRIB_RELEASE", "VERSION_ID":
			lsb.Release = kv.Value
		case "DISTRIB_CODENAME", "VERSION_CODENAME":
			lsb.Codename = kv.Value
		case "DISTRIB_DESCRIPTION", "PRETTY_NAME":
			lsb.Description = kv.Value
		}
	}
	return lsb
}
