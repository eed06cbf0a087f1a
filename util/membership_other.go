//go:build !linux && !darwin && !freebsd

package util

// CheckAdmin leaves the privilege check to the operating system
func CheckAdmin() error {
	return nil
}
