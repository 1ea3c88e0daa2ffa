// Package subprocess runs external tools (gtts-cli, ffmpeg) with a timeout
// and an interrupt-then-kill shutdown.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultGracePeriod = 100 * time.Millisecond

	// maxStderr bounds how much stderr is quoted in errors.
	maxStderr = 2048
)

// ErrTimeout is returned when a command outlives its timeout.
var ErrTimeout = errors.New("subprocess timed out")

// Command describes one invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin io.Reader

	Timeout     time.Duration
	GracePeriod time.Duration // wait after interrupt before killing
}

// Run executes c and returns its stdout. Stdin is attached before the
// process starts. On timeout or cancellation the process is interrupted,
// then killed if it has not exited within the grace period.
func Run(ctx context.Context, c Command) ([]byte, error) {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	} else {
		cmd.Stdin = strings.NewReader("")
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Orphaned grandchildren must not hold the output pipes open forever.
	cmd.WaitDelay = c.GracePeriod

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Name, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		log.Debug("subprocess finished", "cmd", c.Name, "elapsed", time.Since(start), "error", err)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w, stderr: %s", c.Name, err, tail(stderr.String()))
		}
		return stdout.Bytes(), nil

	case <-timer.C:
		stop(cmd, done, c.GracePeriod)
		return nil, fmt.Errorf("%s: %w after %s", c.Name, ErrTimeout, c.Timeout)

	case <-ctx.Done():
		stop(cmd, done, c.GracePeriod)
		return nil, fmt.Errorf("%s canceled: %w", c.Name, ctx.Err())
	}
}

func stop(cmd *exec.Cmd, done <-chan error, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		<-done
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return "..." + s[len(s)-maxStderr:]
	}
	return s
}

// Available reports whether name resolves on PATH.
func Available(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}
