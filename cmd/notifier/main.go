// Package main is the entry point for the attendance notifier.
package main

import (
	"os"

	"github.com/rickgao/attendance-notify/cmd/notifier/cmd"
	"github.com/rickgao/attendance-notify/internal/version"
)

func main() {
	cmd.SetVersionInfo(version.Version, version.Commit, version.BuildTime)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
