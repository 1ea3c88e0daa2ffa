package subprocess

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := Available("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRun_Stdout(t *testing.T) {
	requireSh(t)
	out, err := Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", "cat"},
		Stdin: strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("stdout = %q, want hello", out)
	}
}

func TestRun_FailureIncludesStderr(t *testing.T) {
	requireSh(t)
	_, err := Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo broken pipe >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("error %q should quote stderr", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	requireSh(t)
	start := time.Now()
	_, err := Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "exec sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run() error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("process was not stopped promptly")
	}
}

func TestRun_Canceled(t *testing.T) {
	requireSh(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := Run(ctx, Command{Name: "sh", Args: []string{"-c", "exec sleep 5"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestAvailable_Missing(t *testing.T) {
	if _, err := Available("definitely-not-a-real-binary-xyz"); err == nil {
		t.Error("Available() should fail for a missing binary")
	}
}
