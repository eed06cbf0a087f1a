//go:build !linux

package net

import (
	"syscall"
)

// SetSocketMark is a no-op on platforms without SO_MARK
func SetSocketMark(syscall.Conn, uint32) error {
	return nil
}

// CheckFwmarkSupport always reports false on platforms without SO_MARK
func CheckFwmarkSupport() bool {
	return false
}

func setMark(uintptr, uint32) error {
	return nil
}
