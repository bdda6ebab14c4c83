//go:build linux && !tinygo

package async

import (
	"syscall"
	"unsafe"
)

const maxPinCPU = 64

var cpuMasks [maxPinCPU][1]uintptr

func init() {
	for i := range cpuMasks {
		cpuMasks[i][0] = 1 << uint(i)
	}
}

// pinCurrentThread binds the calling OS thread to cpu via sched_setaffinity.
// The caller must have already called runtime.LockOSThread. Errors are
// swallowed: pinning is a scheduling hint, not a correctness requirement.
func pinCurrentThread(cpu int) {
	if cpu < 0 || cpu >= maxPinCPU {
		return
	}
	mask := &cpuMasks[cpu]
	syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0, unsafe.Sizeof(mask[0]), uintptr(unsafe.Pointer(mask)))
}
