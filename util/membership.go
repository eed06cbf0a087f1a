package util

import "errors"

// ErrNotAdmin is returned by CheckAdmin when the process lacks the privileges to change network interfaces
var ErrNotAdmin = errors.New("not running as root")
