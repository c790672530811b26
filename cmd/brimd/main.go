// Command brimd is a process-supervising application launcher: point it
// at an INI config file naming WSGI/TCP/UDP sub-instances and daemons, and
// it binds every listener, forks one OS process per configured worker
// slot, and keeps the fleet alive for as long as the supervisor runs.
//
// Every re-exec'd worker or daemon process is, at the OS level, just
// another invocation of this same binary — RunChild below is checked
// before any flag parsing happens, so a re-exec'd child never sees the
// cobra command tree at all.
package main

import (
	"fmt"
	"os"

	_ "github.com/brimd/brimd/internal/handlers/echo"
	_ "github.com/brimd/brimd/internal/handlers/heartbeat"
	_ "github.com/brimd/brimd/internal/handlers/statsreport"

	"github.com/brimd/brimd/internal/factory"
	"github.com/brimd/brimd/internal/supervisor"
)

func main() {
	if supervisor.IsChild() {
		if err := supervisor.RunChild(factory.Default); err != nil {
			fmt.Fprintf(os.Stderr, "brimd: child failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "brimd: %v\n", err)
		os.Exit(1)
	}
}
