package symbolize

import "golang.org/x/arch/x86/x86asm"

// maxCallLookback is generous enough to cover any single x86/amd64
// CALL encoding (longest possible instruction is 15 bytes).
const maxCallLookback = 16

// LooksLikeCallBefore is a secondary, amd64/x86-specific heuristic for
// the validity oracle (§4.4, §9's note that "the set of ISAs is closed
// and known at build time" extends to optional per-ISA refinements
// too): given the bytes immediately preceding a candidate return
// address (i.e. ending exactly at that address), try to find a decode
// that lands a CALL instruction exactly at the end of the slice. A
// decode failure never rejects a candidate on its own — it only raises
// confidence when it succeeds, so callers should OR this with the
// symbols-based oracle, never AND.
func LooksLikeCallBefore(bytesBeforeReturnAddress []byte, is64 bool) bool {
	mode := 32
	if is64 {
		mode = 64
	}
	n := len(bytesBeforeReturnAddress)
	start := 0
	if n > maxCallLookback {
		start = n - maxCallLookback
	}
	buf := bytesBeforeReturnAddress[start:]
	// Try decoding from every offset in the lookback window; if any
	// decode consumes exactly to the end of buf and is a CALL, the
	// byte immediately after it is a plausible return address.
	for off := 0; off < len(buf); off++ {
		inst, err := x86asm.Decode(buf[off:], mode)
		if err != nil {
			continue
		}
		if off+inst.Len != len(buf) {
			continue
		}
		switch inst.Op {
		case x86asm.CALL, x86asm.CALLF:
			return true
		}
	}
	return false
}

// looksLikeCallBeforeEitherWidth tries both x86 and amd64 decode modes,
// since the validity oracle that calls this doesn't carry the
// candidate's ISA width through to this layer. A spurious match in the
// wrong width only raises confidence on an already-ambiguous
// candidate; it never downgrades one (§4.4's OR-never-AND rule).
func looksLikeCallBeforeEitherWidth(bytesBeforeReturnAddress []byte) bool {
	return LooksLikeCallBefore(bytesBeforeReturnAddress, true) || LooksLikeCallBefore(bytesBeforeReturnAddress, false)
}
