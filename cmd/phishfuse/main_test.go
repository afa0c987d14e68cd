package main

import (
	"path/filepath"
	"testing"

	"phishfuse/internal/testutil"
)

func TestKnownCommand(t *testing.T) {
	for _, c := range commands {
		testutil.AssertTrue(t, knownCommand(c), c)
	}
	testutil.AssertFalse(t, knownCommand("scan"), "scan")
	testutil.AssertFalse(t, knownCommand(""), "empty")
}

func TestRun_ExitCodes(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "pf.db")
	base := []string{"--env-file=", "--store.dsn", dsn, "-q", "--log-level", "error"}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "version", args: []string{"--env-file=", "--version"}, want: exitOK},
		{name: "help", args: []string{"--env-file=", "-h"}, want: exitOK},
		{name: "no command", args: []string{"--env-file="}, want: exitUsage},
		{name: "unknown command", args: []string{"--env-file=", "scan"}, want: exitUsage},
		{name: "bad flag", args: []string{"--env-file=", "--threshold", "abc", "fuse"}, want: exitUsage},
		{name: "report on empty store", args: append(append([]string{}, base...), "report"), want: exitOK},
		{name: "fuse on empty store", args: append(append([]string{}, base...), "fuse"), want: exitOK},
		{name: "show without id", args: append(append([]string{}, base...), "show"), want: exitUsage},
		{name: "show unknown id", args: append(append([]string{}, base...), "show", "missing"), want: exitRun},
		{name: "ingest without source", args: append(append([]string{}, base...), "ingest"), want: exitUsage},
		{name: "unknown strategy", args: append(append([]string{}, base...), "--strategy", "vote", "fuse"), want: exitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, run(tt.args), tt.want, "exit code")
		})
	}
}
