package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"moru", "WebAssembly", "run"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output missing %q:\n%s", phrase, output)
		}
	}
}

func TestRunMissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	if _, err := executeCommand(rootCmd, "run", "--config", missing); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRunRejectsArgs(t *testing.T) {
	if _, err := executeCommand(rootCmd, "run", "stray"); err == nil {
		t.Fatal("expected error for positional args")
	}
}
