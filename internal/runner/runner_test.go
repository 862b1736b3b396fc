package runner

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestRunner() *Runner {
	return New(zap.NewNop(), DefaultConfig())
}

func TestRunner_Run(t *testing.T) {
	r := newTestRunner()

	var cmd Command
	if runtime.GOOS == "windows" {
		cmd = Command{Binary: "cmd", Args: []string{"/c", "echo", "hello"}}
	} else {
		cmd = Command{Binary: "echo", Args: []string{"hello"}}
	}

	result, err := r.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Ran() {
		t.Errorf("Expected command to run, got error: %s", result.Error)
	}
	if !result.Passed() {
		t.Errorf("Expected pass, exit=%d killed=%v", result.ExitCode, result.Killed)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("Expected stdout to contain 'hello', got: %s", result.Stdout)
	}
	if result.RunID == "" {
		t.Errorf("Expected a run ID")
	}
}

func TestRunner_NonZeroExit(t *testing.T) {
	r := newTestRunner()

	var cmd Command
	if runtime.GOOS == "windows" {
		cmd = Command{Binary: "cmd", Args: []string{"/c", "exit", "3"}}
	} else {
		cmd = Command{Binary: "sh", Args: []string{"-c", "exit 3"}}
	}

	result, err := r.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The command ran; the harness just mirrors the status.
	if !result.Ran() {
		t.Errorf("Expected Ran=true for non-zero exit, got error: %s", result.Error)
	}
	if result.Passed() {
		t.Errorf("Expected Passed=false for non-zero exit")
	}
	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}
}

func TestRunner_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Timeout test unreliable on Windows")
	}

	r := newTestRunner()

	cmd := Command{
		Binary:  "sleep",
		Args:    []string{"10"},
		Timeout: 500 * time.Millisecond,
	}

	start := time.Now()
	result, err := r.Run(context.Background(), cmd)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Killed {
		t.Errorf("Expected command to be killed")
	}
	if !strings.Contains(result.KillReason, "timeout") {
		t.Errorf("Expected kill reason to mention timeout, got: %s", result.KillReason)
	}
	if result.Passed() {
		t.Errorf("Expected Passed=false for a killed command")
	}
	if elapsed > 2*time.Second {
		t.Errorf("Timeout didn't work, elapsed: %v", elapsed)
	}
}

func TestRunner_ContextCancellation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Cancellation test unreliable on Windows")
	}

	r := newTestRunner()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := r.Run(ctx, Command{Binary: "sleep", Args: []string{"10"}})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Killed {
		t.Errorf("Expected command to be killed")
	}
	if !strings.Contains(result.KillReason, "canceled") {
		t.Errorf("Expected kill reason to mention canceled, got: %s", result.KillReason)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Cancellation didn't work quickly, elapsed: %v", elapsed)
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	r := newTestRunner()

	result, err := r.Run(context.Background(), Command{Binary: "nonexistent_command_12345"})
	if err != nil {
		t.Fatalf("Run returned error instead of result: %v", err)
	}

	if result.Ran() {
		t.Errorf("Expected Ran=false for missing binary")
	}
	if result.Error == "" {
		t.Errorf("Expected error message for missing binary")
	}
	if result.ExitCode != -1 {
		t.Errorf("Expected exit code -1, got %d", result.ExitCode)
	}
}

func TestRunner_WorkingDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pwd not available on Windows")
	}

	r := newTestRunner()
	dir := os.TempDir()

	result, err := r.Run(context.Background(), Command{Binary: "pwd", Dir: dir})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := strings.TrimSpace(result.Stdout)
	want := strings.TrimSuffix(dir, string(os.PathSeparator))
	if !strings.Contains(got, want) && !strings.Contains(want, got) {
		t.Errorf("Expected working dir %s, got: %s", dir, got)
	}
}

func TestRunner_OutputCapture(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh not available on Windows")
	}

	r := newTestRunner()

	result, err := r.Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !strings.Contains(result.Stdout, "out") {
		t.Errorf("Expected stdout to contain 'out', got: %s", result.Stdout)
	}
	if !strings.Contains(result.Stderr, "err") {
		t.Errorf("Expected stderr to contain 'err', got: %s", result.Stderr)
	}
	if !strings.Contains(result.Output(), "out") || !strings.Contains(result.Output(), "err") {
		t.Errorf("Expected combined output to contain both streams, got: %s", result.Output())
	}
}

func TestRunner_OutputTruncation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh not available on Windows")
	}

	cfg := DefaultConfig()
	cfg.MaxOutputBytes = 50
	r := New(zap.NewNop(), cfg)

	long := strings.Repeat("A", 200)
	result, err := r.Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo " + long},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Truncated {
		t.Errorf("Expected output to be truncated, got %d bytes", len(result.Stdout))
	}
	if result.TruncatedBytes == 0 {
		t.Errorf("Expected truncated bytes > 0")
	}
	if int64(len(result.Stdout)) > 50 {
		t.Errorf("Expected capture capped at 50 bytes, got %d", len(result.Stdout))
	}
	if !result.Passed() {
		t.Errorf("Truncation must not fail the run")
	}
}

func TestRunner_Stdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("cat not available on Windows")
	}

	r := newTestRunner()

	result, err := r.Run(context.Background(), Command{
		Binary: "cat",
		Stdin:  "ping",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Stdout != "ping" {
		t.Errorf("Expected stdout 'ping', got: %q", result.Stdout)
	}
}

func TestRunner_LiveWriters(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh not available on Windows")
	}

	r := newTestRunner()

	var liveOut, liveErr bytes.Buffer
	result, err := r.Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo out; echo err >&2"},
		Stdout: &liveOut,
		Stderr: &liveErr,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if liveOut.String() != result.Stdout {
		t.Errorf("Live stdout %q != captured %q", liveOut.String(), result.Stdout)
	}
	if liveErr.String() != result.Stderr {
		t.Errorf("Live stderr %q != captured %q", liveErr.String(), result.Stderr)
	}
}

func TestRunner_LiveWritersSeeEverythingPastCap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh not available on Windows")
	}

	cfg := DefaultConfig()
	cfg.MaxOutputBytes = 10
	r := New(zap.NewNop(), cfg)

	var live bytes.Buffer
	result, err := r.Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "printf " + strings.Repeat("B", 100)},
		Stdout: &live,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if live.Len() != 100 {
		t.Errorf("Expected live writer to see all 100 bytes, got %d", live.Len())
	}
	if len(result.Stdout) != 10 {
		t.Errorf("Expected capture capped at 10 bytes, got %d", len(result.Stdout))
	}
}

func TestRunner_Validate(t *testing.T) {
	r := newTestRunner()

	if err := r.Validate(Command{Binary: "echo"}); err != nil {
		t.Errorf("Expected valid command to pass validation: %v", err)
	}
	if err := r.Validate(Command{}); err == nil {
		t.Errorf("Expected empty binary to fail validation")
	}
	if _, err := r.Run(context.Background(), Command{}); err == nil {
		t.Errorf("Expected Run to reject an empty binary")
	}
}

func TestRunner_RunIDsAreUnique(t *testing.T) {
	r := newTestRunner()

	var cmd Command
	if runtime.GOOS == "windows" {
		cmd = Command{Binary: "cmd", Args: []string{"/c", "echo", "x"}}
	} else {
		cmd = Command{Binary: "echo", Args: []string{"x"}}
	}

	a, err := r.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	b, err := r.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if a.RunID == b.RunID {
		t.Errorf("Expected distinct run IDs, both were %s", a.RunID)
	}
}

func TestCommand_String(t *testing.T) {
	cmd := Command{
		Binary: "python",
		Args:   []string{"scripts/reduce_HB2B.py", "data/HB2B_000.h5"},
	}
	if cmd.String() != "python scripts/reduce_HB2B.py data/HB2B_000.h5" {
		t.Errorf("Unexpected command string: %s", cmd.String())
	}

	if (Command{Binary: "ls"}).String() != "ls" {
		t.Errorf("Unexpected command string for no args")
	}
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 4}

	n, err := lw.Write([]byte("0123456789"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 10 {
		t.Errorf("Expected reported length 10, got %d", n)
	}
	if buf.String() != "0123" {
		t.Errorf("Expected buffer '0123', got %q", buf.String())
	}
	if !lw.truncated {
		t.Errorf("Expected truncated flag")
	}
	if lw.discarded != 6 {
		t.Errorf("Expected 6 discarded bytes, got %d", lw.discarded)
	}

	// Further writes are swallowed whole.
	n, err = lw.Write([]byte("ab"))
	if err != nil || n != 2 {
		t.Errorf("Expected swallowed write of 2, got n=%d err=%v", n, err)
	}
	if buf.String() != "0123" {
		t.Errorf("Buffer changed after cap: %q", buf.String())
	}
	if lw.discarded != 8 {
		t.Errorf("Expected 8 discarded bytes, got %d", lw.discarded)
	}
}

func TestResult_Helpers(t *testing.T) {
	r := &Result{ExitCode: 0}
	if !r.Ran() || !r.Passed() {
		t.Errorf("Expected clean result to pass")
	}

	r = &Result{ExitCode: 1}
	if !r.Ran() || r.Passed() {
		t.Errorf("Expected non-zero exit to run but not pass")
	}

	r = &Result{ExitCode: -1, Killed: true, KillReason: "timeout after 1s"}
	if !r.Ran() || r.Passed() {
		t.Errorf("Expected killed result to run but not pass")
	}

	r = &Result{ExitCode: -1, Error: "exec: not found"}
	if r.Ran() || r.Passed() {
		t.Errorf("Expected infra failure to neither run nor pass")
	}

	r = &Result{Stdout: "a", Stderr: "b"}
	if r.Output() != "a\nb" {
		t.Errorf("Unexpected combined output: %q", r.Output())
	}
}
