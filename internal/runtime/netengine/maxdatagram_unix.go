//go:build linux || darwin || freebsd || netbsd || openbsd
// +build linux darwin freebsd netbsd openbsd

package netengine

import (
	"net"

	"golang.org/x/sys/unix"
)

// queryMaxDatagramSize queries the socket's SO_SNDBUF via the raw fd, per
// SPEC_FULL.md's supplemented GetMaxPacketByteSize feature (the original's
// epSocket::GetMaxPacketByteSize asked the OS for its maximum message size,
// SO_MAX_MSG_SIZE; SO_SNDBUF is the nearest portable analogue and only an
// approximation of it). Falls back to fallbackMaxDatagramSize on any
// syscall failure, and never reports more than that constant.
func queryMaxDatagramSize(conn *net.UDPConn) int {
	sc, err := conn.SyscallConn()
	if err != nil {
		return fallbackMaxDatagramSize
	}
	var size int
	var sockErr error
	ctrlErr := sc.Control(func(fd uintptr) {
		size, sockErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF)
	})
	if ctrlErr != nil || sockErr != nil || size <= 0 {
		return fallbackMaxDatagramSize
	}
	if size > fallbackMaxDatagramSize {
		return fallbackMaxDatagramSize
	}
	return size
}
