package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"defiFetch/internal/reconcile"
)

// chdir keeps ./config.yaml and ./.env of the package directory out of the tests.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestOrderCommand(t *testing.T) {
	chdir(t, t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"order", "--output", "position", "--pool", "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 nodes, got %q", out.String())
	}
	want := []string{"proxy", "pool", "tick", "position"}
	for i, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) != 4 || fields[1] != want[i] {
			t.Fatalf("line %d: unexpected %q", i, line)
		}
	}
	if !strings.Contains(lines[0], "0xc36442b4a4522e871399cd717abdd847ab11fe88") {
		t.Fatalf("expected default position manager, got %q", lines[0])
	}
}

func TestOrderCommandUnknownOutput(t *testing.T) {
	chdir(t, t.TempDir())

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"order", "--output", "tvl"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected unsupported output error")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	chdir(t, t.TempDir())

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--from", "2024-01-02", "--pool", "0x1234"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected validation error before any network activity")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug"); err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestRunFlagsReachFetcherAndReconciler(t *testing.T) {
	chdir(t, t.TempDir())

	cmd, _, err := newRootCmd().Find([]string{"run"})
	if err != nil {
		t.Fatalf("find run: %v", err)
	}
	args := []string{"--save-every", "25", "--tolerance", "7", "--sole-collect-tolerance", "90"}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SaveEvery != 25 {
		t.Fatalf("expected save every 25, got %d", cfg.SaveEvery)
	}

	target := targetFor(cfg, "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640", nil)
	if target.Reconcile.Tolerance != 7 || target.Reconcile.SoleCollectTolerance != 90 {
		t.Fatalf("unexpected reconcile options %+v", target.Reconcile)
	}
}

func TestRunFlagsToleranceDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cmd, _, err := newRootCmd().Find([]string{"run"})
	if err != nil {
		t.Fatalf("find run: %v", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	target := targetFor(cfg, "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640", nil)
	if target.Reconcile.Tolerance != reconcile.DefaultTolerance || target.Reconcile.SoleCollectTolerance != reconcile.DefaultSoleCollectTolerance {
		t.Fatalf("unexpected default reconcile options %+v", target.Reconcile)
	}
}
