package processor

import "errors"

// ProcessError is the fatal-error category of §7 tier 1: returned
// instead of a ProcessState when the dump cannot be processed at all.
var (
	ErrMinidumpRead      = errors.New("processor: failed to read minidump")
	ErrUnknown           = errors.New("processor: an unknown error occurred")
	ErrMissingSystemInfo = errors.New("processor: the system information stream was not found")
	ErrMissingThreadList = errors.New("processor: the thread list stream was not found")
)
