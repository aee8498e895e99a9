// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// checkPeerUID rejects Unix socket peers running as a different user.
func checkPeerUID(conn net.Conn) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return errors.New("not a unix socket connection")
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return err
	}

	var credentials *unix.Ucred
	var credentialErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, credentialErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return err
	}
	if credentialErr != nil {
		return fmt.Errorf("reading peer credentials: %w", credentialErr)
	}
	if int(credentials.Uid) != os.Getuid() {
		return fmt.Errorf("peer uid %d (pid %d) does not match server uid %d",
			credentials.Uid, credentials.Pid, os.Getuid())
	}
	return nil
}
