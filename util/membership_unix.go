//go:build linux || darwin || freebsd

package util

import (
	"os"
)

// CheckAdmin returns ErrNotAdmin when the effective user is not root
func CheckAdmin() error {
	if os.Geteuid() != 0 {
		return ErrNotAdmin
	}
	return nil
}
