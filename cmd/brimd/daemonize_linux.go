package main

import "syscall"

// detachedSysProcAttr puts the daemonized re-exec in its own session,
// detaching it from the controlling terminal so a SIGHUP to the
// original shell (or the shell simply exiting) never reaches it.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
