// Package executor runs an exploit's prepare/command/cleanup scripts as
// subprocesses, substituting {target} and {flag_ids_path} placeholders
// exactly as the original's executor/shell.py did.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/avalactf/avala/internal/client/exploit"
	"github.com/avalactf/avala/pkg/log"
	"github.com/coregx/coregex"
)

// Result is the outcome of one exploit run against one target.
type Result struct {
	Target  string
	FlagIDs []string
	Output  string
	Err     error
}

// Executor runs exploit commands and extracts flags from their output.
type Executor struct {
	flagFormat *coregex.Regex
}

// New compiles flagFormat once for reuse across every run.
func New(flagFormat string) (*Executor, error) {
	re, err := coregex.Compile(flagFormat)
	if err != nil {
		return nil, fmt.Errorf("executor: invalid flag format %q: %w", flagFormat, err)
	}
	return &Executor{flagFormat: re}, nil
}

func substitute(s, target, flagIDsPath string) string {
	s = strings.ReplaceAll(s, "{target}", target)
	s = strings.ReplaceAll(s, "{flag_ids_path}", flagIDsPath)
	return s
}

func run(ctx context.Context, script string, env map[string]string, timeout time.Duration) ([]byte, error) {
	if script == "" {
		return nil, nil
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", script)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Run executes cfg.Prepare (once, if set), cfg.Command against target with
// flagIDs written to a temp file at flagIDsPath, and cfg.Cleanup (best
// effort, errors logged not returned). Flags are extracted from the
// command's combined stdout/stderr via the configured flag format.
func (e *Executor) Run(ctx context.Context, cfg exploit.Config, target, flagIDsPath string) Result {
	if cfg.Prepare != "" {
		if _, err := run(ctx, substitute(cfg.Prepare, target, flagIDsPath), cfg.Env, cfg.Timeout); err != nil {
			return Result{Target: target, Err: fmt.Errorf("executor: prepare: %w", err)}
		}
	}

	out, err := run(ctx, substitute(cfg.Command, target, flagIDsPath), cfg.Env, cfg.Timeout)

	if cfg.Cleanup != "" {
		if _, cerr := run(ctx, substitute(cfg.Cleanup, target, flagIDsPath), cfg.Env, cfg.Timeout); cerr != nil {
			log.Warnf("executor: cleanup for %s/%s failed: %v", cfg.Alias, target, cerr)
		}
	}

	if err != nil {
		return Result{Target: target, Output: string(out), Err: fmt.Errorf("executor: command: %w", err)}
	}

	return Result{Target: target, FlagIDs: e.flagFormat.FindAllString(string(out), -1), Output: string(out)}
}
