// Package editor opens entity data in the user's editor.
package editor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Opener finds the user's editor
type Opener struct {
	getenv   func(string) string
	lookPath func(string) (string, error)
}

// NewOpener creates a new editor opener
func NewOpener() *Opener {
	return &Opener{getenv: os.Getenv, lookPath: exec.LookPath}
}

// Command returns an exec.Cmd for opening a file in the editor.
// The command is meant for bubbletea's ExecProcess, which hands it the terminal.
func (o *Opener) Command(path string) (*exec.Cmd, error) {
	editor := o.findEditor()
	if editor == "" {
		return nil, fmt.Errorf("no editor found: set $EDITOR environment variable")
	}

	// $EDITOR may carry arguments, e.g. "code --wait"
	fields := strings.Fields(editor)
	cmd := exec.Command(fields[0], append(fields[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// findEditor returns the editor to use
func (o *Opener) findEditor() string {
	if editor := o.getenv("EDITOR"); editor != "" {
		return editor
	}
	if visual := o.getenv("VISUAL"); visual != "" {
		return visual
	}
	for _, editor := range []string{"nvim", "vim", "vi", "nano"} {
		if path, err := o.lookPath(editor); err == nil {
			return path
		}
	}
	return ""
}

// DataFile is a node's entity data written out for editing
type DataFile struct {
	Path   string
	NodeID string

	original []byte
}

// WriteDataFile writes data, indented, to a fresh temporary file
func WriteDataFile(nodeID string, data json.RawMessage) (*DataFile, error) {
	var pretty bytes.Buffer
	if len(data) == 0 {
		pretty.WriteString("{}")
	} else if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return nil, fmt.Errorf("format entity data: %w", err)
	}
	pretty.WriteByte('\n')

	f, err := os.CreateTemp("", "arbor-*.json")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(pretty.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	return &DataFile{Path: f.Name(), NodeID: nodeID, original: pretty.Bytes()}, nil
}

// Read returns the edited data and whether it differs from what was written
func (f *DataFile) Read() (json.RawMessage, bool, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, false, err
	}
	if !json.Valid(raw) {
		return nil, false, fmt.Errorf("edited data is not valid JSON")
	}
	var before, after bytes.Buffer
	if err := json.Compact(&before, f.original); err != nil {
		return nil, false, err
	}
	if err := json.Compact(&after, raw); err != nil {
		return nil, false, err
	}
	return json.RawMessage(after.Bytes()), !bytes.Equal(before.Bytes(), after.Bytes()), nil
}

// Remove deletes the file
func (f *DataFile) Remove() error {
	return os.Remove(f.Path)
}
