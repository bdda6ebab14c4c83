//go:build !linux || tinygo

package async

// pinCurrentThread is a no-op on platforms without a cheap raw affinity
// syscall. The CPU-to-queue assignment and routing policy are unaffected --
// only the OS-level pin is a best-effort hint.
func pinCurrentThread(cpu int) {}
