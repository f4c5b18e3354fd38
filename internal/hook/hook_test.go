package hook_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bryan-buckman/cringecast/internal/hook"
	"github.com/bryan-buckman/cringecast/internal/testsupport"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell hooks are not supported on windows")
	}
	path := testsupport.WriteFile(t, dir, "hook.sh", []byte("#!/bin/sh\n"+body))
	if err := os.Chmod(path, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	return path
}

func TestRunPassesPathAsSoleArgument(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "args.txt")
	script := writeScript(t, dir, `printf '%s|' "$@" > "`+out+`"`+"\n")

	if err := hook.New(nil).Run(context.Background(), script, "/music/My Show/Ep 1.mp3"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	if got := string(data); got != "/music/My Show/Ep 1.mp3|" {
		t.Fatalf("hook saw %q", got)
	}
}

func TestRunReportsFailure(t *testing.T) {
	script := writeScript(t, t.TempDir(), "echo broken >&2\nexit 3\n")
	err := hook.New(nil).Run(context.Background(), script, "x.mp3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error should carry hook output: %v", err)
	}
}

func TestRunWithoutExecutableIsNoop(t *testing.T) {
	if err := hook.New(nil).Run(context.Background(), "", "x.mp3"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
