// Package privilege drops root privileges after binding sockets and
// applies the configured umask, the same
// direct-syscall style internal/bpf/loader.go uses for everything else
// that touches kernel state.
package privilege

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/brimd/brimd/internal/brimerr"
)

// Drop sets the process's umask, then group and user, in that order
// (group must change before user, since changing the user away from root
// usually revokes the right to change group). An empty userName/groupName
// is a no-op for that half of the drop. umaskSpec is an octal string like
// "022"; empty means "leave the inherited umask alone".
func Drop(userName, groupName, umaskSpec string) error {
	if umaskSpec != "" {
		mask, err := strconv.ParseUint(umaskSpec, 8, 32)
		if err != nil {
			return brimerr.New(brimerr.KindPrivilege, "brim", "invalid umask %q: %v", umaskSpec, err)
		}
		unix.Umask(int(mask))
	}

	var gid int = -1
	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return brimerr.New(brimerr.KindPrivilege, "brim", "unknown group %q: %v", groupName, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return brimerr.New(brimerr.KindPrivilege, "brim", "group %q has non-numeric gid %q", groupName, g.Gid)
		}
		if err := unix.Setgid(gid); err != nil {
			return brimerr.New(brimerr.KindPrivilege, "brim", "setgid(%d) for group %q: %v", gid, groupName, err)
		}
	}

	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return brimerr.New(brimerr.KindPrivilege, "brim", "unknown user %q: %v", userName, err)
		}
		uid, err := strconv.Atoi(u.Uid)
		if err != nil {
			return brimerr.New(brimerr.KindPrivilege, "brim", "user %q has non-numeric uid %q", userName, u.Uid)
		}
		if gid == -1 {
			// No explicit group given: drop to the user's primary group too,
			// so we never run as root:root by accident.
			if g, err := strconv.Atoi(u.Gid); err == nil {
				if err := unix.Setgid(g); err != nil {
					return brimerr.New(brimerr.KindPrivilege, "brim", "setgid(%d) for user %q's primary group: %v", g, userName, err)
				}
			}
		}
		if err := unix.Setuid(uid); err != nil {
			return brimerr.New(brimerr.KindPrivilege, "brim", "setuid(%d) for user %q: %v", uid, userName, err)
		}
	}

	return nil
}

// CheckNotRoot returns an error if the process is still running as root
// after a drop was requested — used as a defensive check right after
// Drop returns, since a silently-failed setuid (e.g. missing CAP_SETUID)
// would otherwise go unnoticed until something exploitable happens.
func CheckNotRoot(userName string) error {
	if userName == "" {
		return nil
	}
	if unix.Getuid() == 0 {
		return fmt.Errorf("privilege: still running as uid 0 after requesting drop to %q", userName)
	}
	return nil
}
