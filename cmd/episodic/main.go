// episodic keeps a hierarchy of rollup digests over a corpus of raw records:
// weekly digests of records, monthly digests of weeklies, and so on up to
// centurial.
//
// Usage:
//
//	episodic check
//	episodic run [--level id] [--draft] [--overwrite abort|overwrite|skip]
//	episodic shadow update | shadow show [level]
//	episodic rollup <level> [--title t]
//	episodic finalize <draft> <title>
//	episodic migrate [--apply]
//	episodic status
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via -ldflags.
var version = "dev"

// Exit codes. check uses exitDue so schedulers can branch on it.
const (
	exitOK    = 0
	exitDue   = 1
	exitError = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	defer a.Close()
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errDue):
		return exitDue
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return exitError
	}
}
