package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime/trace"

	"github.com/quay/zlog"
)

// RunShell executes script (a shell fragment) with env appended to the
// process environment, via a safe "/bin/sh -c" invocation — never a bare
// os/exec.Command(script) that would split on whitespace unpredictably.
//
// Per spec.md §4.3, a non-zero exit is logged as a warning and returned as
// an error for the caller to decide whether to treat as fatal (only the
// image builder's explicit script invocations do).
func RunShell(ctx context.Context, script string, env Env) error {
	defer trace.StartRegion(ctx, "adapter.RunShell").End()
	if script == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Env = append(cmd.Environ(), env.Vars()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		zlog.Warn(ctx).
			Err(err).
			Str("stderr", stderr.String()).
			Msg("scriptlet exited non-zero")
		return fmt.Errorf("adapter: scriptlet failed: %w", err)
	}
	return nil
}
