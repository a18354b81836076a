// Package compdb loads clang compilation databases (compile_commands.json).
package compdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Entry is one compile command. Either Command or Arguments is populated,
// per the compilation-database format.
type Entry struct {
	Directory string   `json:"directory"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
	File      string   `json:"file"`
	Output    string   `json:"output,omitempty"`
}

// SourcePath returns the absolute path of the entry's source file.
func (e Entry) SourcePath() string {
	if filepath.IsAbs(e.File) {
		return filepath.Clean(e.File)
	}

	return filepath.Join(e.Directory, e.File)
}

// Load reads a compilation database file.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compilation database: %w", err)
	}

	var entries []Entry

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse compilation database %s: %w", path, err)
	}

	return entries, nil
}
