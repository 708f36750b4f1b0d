package wrapper

import (
	"os/signal"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// raise sends sig to the calling thread with the kernel default action
// installed. signal.Reset alone leaves the runtime handler in place, which
// turns SIGSEGV, SIGABRT and SIGQUIT into a stack dump and exit status 2.
func raise(sig syscall.Signal) error {
	signal.Reset(sig)
	runtime.LockOSThread()

	// Zeroed kernel sigaction: SIG_DFL, no flags, empty mask.
	var act [4]uint64
	const sigsetSize = 8
	if _, _, errno := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig),
		uintptr(unsafe.Pointer(&act)), 0, sigsetSize, 0, 0); errno != 0 {
		return errno
	}

	var set unix.Sigset_t
	bits := uint(unsafe.Sizeof(set.Val[0])) * 8
	n := uint(sig) - 1
	set.Val[n/bits] |= 1 << (n % bits)
	if err := unix.PthreadSigmask(unix.SIG_UNBLOCK, &set, nil); err != nil {
		return err
	}

	return unix.Tgkill(unix.Getpid(), unix.Gettid(), sig)
}
