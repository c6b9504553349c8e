//go:build windows

package process

import (
	"context"
	"os/exec"
)

// shellCommand runs script through cmd.exe on Windows systems
func shellCommand(ctx context.Context, script string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "cmd", "/c", script)
}
