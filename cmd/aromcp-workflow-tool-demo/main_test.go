package main

import (
	"context"
	"testing"
)

func TestExecShell_CapturesOutput(t *testing.T) {
	res, err := execShell(context.Background(), "echo hello", "", nil)
	if err != nil {
		t.Fatalf("execShell: %v", err)
	}
	if res.ExitCode != 0 || res.Stdout != "hello" {
		t.Fatalf("res = %+v", res)
	}
}

func TestExecShell_NonZeroExit(t *testing.T) {
	res, err := execShell(context.Background(), "exit 7", "", nil)
	if err != nil {
		t.Fatalf("execShell: %v", err)
	}
	if res.ExitCode != 7 {
		t.Fatalf("res.ExitCode = %d, want 7", res.ExitCode)
	}
}

func TestStringEnv(t *testing.T) {
	got := stringEnv(map[string]any{"A": "1", "B": 2})
	if got["A"] != "1" {
		t.Fatalf("got = %+v", got)
	}
	if _, ok := got["B"]; ok {
		t.Fatalf("expected non-string value to be dropped: %+v", got)
	}
}
