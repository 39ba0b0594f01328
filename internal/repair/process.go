package repair

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"texbridge/internal/logger"
	"texbridge/internal/types"
)

// waitDelay bounds how long a killed process may hold its output pipes.
const waitDelay = 500 * time.Millisecond

// ProcessRepairer runs a shell command. The command reads the request JSON
// on stdin and writes the candidate text to stdout.
type ProcessRepairer struct {
	Command string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// NewProcessRepairer returns a repairer for cmd.
func NewProcessRepairer(cmd string) *ProcessRepairer {
	return &ProcessRepairer{Command: cmd}
}

func (p *ProcessRepairer) Name() string { return "process" }

// Repair runs the command until it exits or ctx ends.
func (p *ProcessRepairer) Repair(ctx context.Context, req *Request) (string, error) {
	if strings.TrimSpace(p.Command) == "" {
		return "", types.NewAppError(types.ErrConfig, "repair command is empty", nil)
	}
	payload, err := req.Marshal()
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to encode repair request", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", p.Command)
	cmd.Dir = p.Dir
	cmd.WaitDelay = waitDelay
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running repair command", logger.String("command", p.Command), logger.Int("payloadBytes", len(payload)))
	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", types.NewAppError(types.ErrRepair, "repair command timed out", ctx.Err())
	}
	if err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrRepair, "repair command failed", strings.TrimSpace(stderr.String()), err)
	}

	out := strings.TrimRight(stdout.String(), " \t\r\n")
	if out == "" {
		return "", nil
	}
	return out + "\n", nil
}
