// Package ipc is the file-based channel between voxbox-ctl and voxbox-core:
// commands go in through cmd.txt, state comes out through status.json. Both
// live in the daemon's cache directory.
package ipc

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tiroq/voxbox/internal/statemachine"
)

// Command is a request written by a client for the daemon.
type Command string

const (
	CmdPrimary Command = "primary" // Press the main button
	CmdReset   Command = "reset"   // Discard the recording
	CmdQuit    Command = "quit"    // Shutdown daemon
)

// CommandFile is the name of the command file inside the cache directory.
const CommandFile = "cmd.txt"

// ParseCommand maps s to a known command. ok is false for anything else.
func ParseCommand(s string) (Command, bool) {
	cmd := Command(strings.TrimSpace(s))
	switch cmd {
	case CmdPrimary, CmdReset, CmdQuit:
		return cmd, true
	}
	return "", false
}

// Intent returns the controller intent for cmd. Quit has none.
func (c Command) Intent() (statemachine.Intent, bool) {
	switch c {
	case CmdPrimary:
		return statemachine.IntentPrimary, true
	case CmdReset:
		return statemachine.IntentReset, true
	}
	return "", false
}

// WriteCommand writes a command to <dir>/cmd.txt
func WriteCommand(dir string, cmd Command) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, CommandFile), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears <dir>/cmd.txt.
// Returns empty string if no command is pending or it is not recognised.
func ReadCommand(dir string) (Command, error) {
	cmdPath := filepath.Join(dir, CommandFile)

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(cmdPath, []byte(""), 0644); err != nil {
		return "", err
	}

	cmd, ok := ParseCommand(string(data))
	if !ok {
		return "", nil
	}
	return cmd, nil
}
