package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"nomadcastd/internal/logging"
)

// Placeholder tokens substituted into the configured fetch command.
const (
	placeholderDest = "{dest}"
	placeholderPath = "{path}"
)

// Exit codes the fetch command uses to classify its own failures. Any
// other non-zero exit is treated as a link failure and retried.
const (
	exitNotFound = 2
	exitLinkDown = 3
)

// Command fetches files by running an external transport client. The
// fetched bytes arrive on the command's stdout.
type Command struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommand builds a Command fetcher from the configured argv. The
// argv must reference both placeholders so each invocation names a
// single remote file.
func NewCommand(argv []string, timeout time.Duration, logger *slog.Logger) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.New("fetch command is empty")
	}
	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, placeholderDest) || !strings.Contains(joined, placeholderPath) {
		return nil, fmt.Errorf("fetch command must contain %s and %s placeholders", placeholderDest, placeholderPath)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Command{argv: argv, timeout: timeout, logger: logger}, nil
}

// Fetch runs the transport command for ref and returns its stdout.
func (c *Command) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := make([]string, len(c.argv))
	for i, arg := range c.argv {
		arg = strings.ReplaceAll(arg, placeholderDest, ref.DestHash)
		arg = strings.ReplaceAll(arg, placeholderPath, ref.Path)
		args[i] = arg
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)
	if err == nil {
		c.logger.Debug("fetched file",
			logging.String("ref", ref.String()),
			logging.Int("bytes", stdout.Len()),
			logging.Duration("elapsed", elapsed))
		return stdout.Bytes(), nil
	}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return nil, &Error{Kind: KindTimeout, Ref: ref, Err: ctxErr}
	}
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return nil, ctxErr
	}

	kind := KindLinkDown
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitNotFound:
			kind = KindNotFound
		case exitLinkDown:
			kind = KindLinkDown
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, firstLine(msg))
		}
	}
	return nil, &Error{Kind: kind, Ref: ref, Err: err}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
