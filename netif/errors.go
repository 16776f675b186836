package netif

import (
	"errors"
	"os"
	"syscall"

	"github.com/vnetd/vnetd/neterr"
)

// classify translates an OS-level error into the shared taxonomy. Errno
// values surface wrapped in *os.PathError or *os.SyscallError depending on
// the call path, so we match through the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		if errors.Is(err, os.ErrPermission) {
			return neterr.Wrap(neterr.PermissionDenied, err)
		}
		if errors.Is(err, os.ErrExist) {
			return neterr.Wrap(neterr.NameConflict, err)
		}
		return neterr.Wrap(neterr.PlatformFailure, err)
	}
	switch errno {
	case syscall.EPERM, syscall.EACCES:
		return neterr.Wrap(neterr.PermissionDenied, err)
	case syscall.EEXIST, syscall.EBUSY:
		return neterr.Wrap(neterr.NameConflict, err)
	case syscall.ENFILE, syscall.EMFILE, syscall.ENOSPC, syscall.ENOMEM:
		return neterr.Wrap(neterr.ResourceExhausted, err)
	default:
		return neterr.Wrap(neterr.PlatformFailure, err)
	}
}
