//go:build !unix

package render

import "os/exec"

// killProcessGroup keeps the default cancellation; WaitDelay still bounds
// the wait for output.
func killProcessGroup(cmd *exec.Cmd) {}
