// SPDX-License-Identifier: GPL-3.0-or-later

//go:build windows

package mdns

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// reuseAddrPort marks the socket address as reusable before bind.
// Windows has no SO_REUSEPORT; SO_REUSEADDR alone covers port sharing.
func reuseAddrPort(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = windows.SetsockoptInt(
			windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
