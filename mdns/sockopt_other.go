// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package mdns

import "syscall"

// reuseAddrPort is a no-op on platforms without a known port-sharing
// socket option; binding fails there when port 5353 is already taken.
func reuseAddrPort(network, address string, c syscall.RawConn) error {
	return nil
}
