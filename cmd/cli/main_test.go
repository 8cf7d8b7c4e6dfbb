package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v\n%s", args, err, errOut.String())
	}
	return out.String()
}

func TestLocators(t *testing.T) {
	out := execute(t, "", "locators")
	if out != "builtin.core\nbundles.dice\n" {
		t.Errorf("out = %q", out)
	}
}

func TestConsoleSession(t *testing.T) {
	out := execute(t, "!ping\n", "--plugins", "builtin.core", "--log-level", "error")
	if !strings.Contains(out, "Pong!") {
		t.Errorf("out = %q", out)
	}
}

func TestConsoleCustomPrefix(t *testing.T) {
	out := execute(t, "?roll 1d6\n!roll 1d6\n", "--plugins", "bundles.dice", "--prefix", "?", "--log-level", "error")
	if strings.Count(out, "Dice Roll") != 1 {
		t.Errorf("out = %q", out)
	}
}
