package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/brimd/brimd/internal/config"
	"github.com/brimd/brimd/internal/factory"
	"github.com/brimd/brimd/internal/pidfile"
	"github.com/brimd/brimd/internal/supervisor"
)

var (
	configPath  string
	pidFileFlag string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "brimd",
		Short:         "brimd supervises worker and daemon processes declared in an INI config",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/brimd/brimd.ini", "path to the brimd config file")
	root.PersistentFlags().StringVarP(&pidFileFlag, "pidfile", "p", "", "override the pidfile path used to locate a running supervisor")

	root.AddCommand(newStartCmd(), newNoDaemonCmd(), newStopCmd(), newRestartCmd(), newReloadCmd(), newShutdownCmd(), newStatusCmd())
	return root
}

func newStartCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the supervisor, daemonized unless -o is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if foreground {
				return runForeground(configPath)
			}
			return runDaemonized(configPath)
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "o", false, "run in the foreground instead of daemonizing (same as the no-daemon verb)")
	return cmd
}

func newNoDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "no-daemon",
		Short: "run the supervisor in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground(configPath)
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop a running supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendCommand(configPath, supervisor.CtlRequest{Cmd: "shutdown"})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func newShutdownCmd() *cobra.Command {
	cmd := newStopCmd()
	cmd.Use = "shutdown"
	cmd.Short = "alias for stop"
	return cmd
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "roll every worker/daemon over a SIGTERM-based restart against the running config",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendCommand(configPath, supervisor.CtlRequest{Cmd: "reload"})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether the supervisor is running and its aggregated stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvePidFile(configPath)
			if err != nil {
				return err
			}
			pid, err := pidfile.Read(path)
			if err != nil || !pidfile.IsAlive(pid) {
				fmt.Println("brimd: not running")
				return nil
			}
			resp, err := sendCommand(configPath, supervisor.CtlRequest{Cmd: "status"})
			if err != nil {
				return fmt.Errorf("brimd: running (pid %d) but control socket unreachable: %w", pid, err)
			}
			fmt.Printf("brimd: running (pid %d)\n", pid)
			return printResponse(resp)
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "stop the running supervisor, wait for it to exit, then start a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvePidFile(configPath)
			if err != nil {
				return err
			}
			if pid, err := pidfile.Read(path); err == nil && pidfile.IsAlive(pid) {
				if _, err := sendCommand(configPath, supervisor.CtlRequest{Cmd: "shutdown"}); err != nil {
					return fmt.Errorf("brimd: restart: stop failed: %w", err)
				}
				if err := waitForExit(path, 30*time.Second); err != nil {
					return fmt.Errorf("brimd: restart: %w", err)
				}
			}
			return runDaemonized(configPath)
		},
	}
}

// resolvePidFile returns the pidfile path the CLI should probe: the -p
// flag if given, otherwise whatever the config file itself declares.
// This only affects where the CLI *looks*; the running supervisor always
// writes to the pid_file its own frozen LaunchPlan names.
func resolvePidFile(configPath string) (string, error) {
	if pidFileFlag != "" {
		return pidFileFlag, nil
	}
	doc, err := config.ParseFile(configPath)
	if err != nil {
		return "", err
	}
	return doc.GetString("brim", "pid_file", "/var/run/brimd.pid"), nil
}

func waitForExit(pidFilePath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pid, err := pidfile.Read(pidFilePath)
		if err != nil || !pidfile.IsAlive(pid) {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for prior supervisor to exit")
}

func runForeground(configPath string) error {
	execPath, err := os.Executable()
	if err != nil {
		return err
	}
	p, err := supervisor.NewParent(configPath, execPath, factory.Default)
	if err != nil {
		return err
	}
	p.RunSignalLoop()
	return nil
}

// runDaemonized re-execs the current binary detached from the controlling
// terminal (new session via Setsid, stdio redirected to /dev/null) and
// returns once that process has reported it bound every listener and
// wrote its pidfile — so the CLI only exits 0 once startup genuinely
// succeeded, not merely once the fork happened.
func runDaemonized(configPath string) error {
	execPath, err := os.Executable()
	if err != nil {
		return err
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devNull.Close()

	cmd := exec.Command(execPath, "no-daemon", "-c", configPath)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = detachedSysProcAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("brimd: daemonize: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return err
	}

	path, err := resolvePidFile(configPath)
	if err != nil {
		return err
	}
	return waitForStart(path, 10*time.Second)
}

func waitForStart(pidFilePath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pid, err := pidfile.Read(pidFilePath); err == nil && pidfile.IsAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for supervisor to start (check its log output)")
}

// sendCommand dials the control socket named by the config file's
// ctl_socket option (or -p's directory convention is not used here: the
// control socket path is always config-derived, never the pidfile path)
// and returns the parsed response.
func sendCommand(configPath string, req supervisor.CtlRequest) (supervisor.CtlResponse, error) {
	doc, err := config.ParseFile(configPath)
	if err != nil {
		return supervisor.CtlResponse{}, err
	}
	sockPath := doc.GetString("brim", "ctl_socket", "/var/run/brimd.ctl.sock")

	conn, err := net.DialTimeout("unix", sockPath, 5*time.Second)
	if err != nil {
		return supervisor.CtlResponse{}, fmt.Errorf("connect control socket %s: %w", sockPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	body, err := json.Marshal(req)
	if err != nil {
		return supervisor.CtlResponse{}, err
	}
	body = append(body, '\n')
	if _, err := conn.Write(body); err != nil {
		return supervisor.CtlResponse{}, err
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return supervisor.CtlResponse{}, err
	}
	var resp supervisor.CtlResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return supervisor.CtlResponse{}, err
	}
	return resp, nil
}

func printResponse(resp supervisor.CtlResponse) error {
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error)
	}
	if resp.Status == nil {
		fmt.Println("ok")
		return nil
	}
	out, err := json.MarshalIndent(resp.Status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
