package main

import (
	"strings"
	"testing"
)

// Execute must return failures to main rather than printing them itself:
// SilenceErrors is set, so main owns the single error line on stderr.
func TestExecute_ReturnsErrorForUnknownCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"no-such-command"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Execute() accepted an unknown command, want error")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
}
