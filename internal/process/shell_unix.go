//go:build !windows

package process

import (
	"context"
	"os/exec"
)

// shellCommand runs script through the system shell on Unix systems
func shellCommand(ctx context.Context, script string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "/bin/sh", "-c", script)
}
