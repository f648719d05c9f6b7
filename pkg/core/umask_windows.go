//go:build windows

package core

// getUmask has no equivalent concept on Windows; fall back to a conventional
// default that denies group/other write access.
func getUmask() Mode {
	return Mode(0o022)
}
