//go:build !windows

package core

import "golang.org/x/sys/unix"

// getUmask reads the process umask without permanently altering it, by
// setting a throwaway value and immediately restoring the original.
func getUmask() Mode {
	mask := unix.Umask(0o022)
	unix.Umask(mask)
	return Mode(mask) & ModePermissionsMask
}
