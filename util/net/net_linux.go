package net

import (
	"fmt"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// SetSocketMark sets the SO_MARK option on the given socket connection
func SetSocketMark(conn syscall.Conn, mark uint32) error {
	if mark == 0 {
		return nil
	}

	sysconn, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("get raw conn: %w", err)
	}

	return SocketOptions{Fwmark: mark}.control("", "", sysconn)
}

// CheckFwmarkSupport reports whether the process is allowed to mark its sockets
func CheckFwmarkSupport() bool {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		log.Warnf("failed to create test socket: %v", err)
		return false
	}
	defer unix.Close(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, DefaultFwmark); err != nil {
		log.Warnf("fwmark is not supported: %v", err)
		return false
	}
	return true
}

func setMark(fd uintptr, mark uint32) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_MARK, int(mark))
}
