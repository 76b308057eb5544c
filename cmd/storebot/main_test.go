package main

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd(&app{})
	for _, name := range []string{"serve", "export", "broadcast", "seed"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("find %s: %v", name, err)
		}
		if cmd.Name() != name {
			t.Fatalf("expected %s, got %s", name, cmd.Name())
		}
	}
}

func TestBroadcastRequiresTitleAndMessage(t *testing.T) {
	root := newRootCmd(&app{logger: zap.NewNop()})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"broadcast", "--title", "Скидки"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "--message") {
		t.Fatalf("expected missing flag error, got %v", err)
	}
}

func TestSeedReportsMissingFile(t *testing.T) {
	root := newRootCmd(&app{logger: zap.NewNop()})
	root.SetArgs([]string{"seed", "--file", t.TempDir() + "/absent.yaml"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "absent.yaml") {
		t.Fatalf("expected read error, got %v", err)
	}
}
