// Package fragment reads the per-TU JSON fragments produced by the clang
// extractors: IPM (incomplete polymorph) and ICG (incomplete call graph)
// files, each holding one JSON array of records.
package fragment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/exceptrace/internal/graph"
)

// ErrMalformed marks a fragment that failed to parse even after the
// backslash-stripping retry.
var ErrMalformed = errors.New("malformed fragment")

// decodeArray parses a JSON array into v. The extractors occasionally emit
// stray backslash escapes in source paths; when the first parse fails, the
// payload is retried with every backslash byte removed before the TU is
// given up on.
func decodeArray(data []byte, v any) error {
	firstErr := json.Unmarshal(data, v)
	if firstErr == nil {
		return nil
	}

	stripped := bytes.ReplaceAll(data, []byte(`\`), nil)

	if err := json.Unmarshal(stripped, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, firstErr)
	}

	return nil
}

// LoadFunctions reads one ICG fragment file.
func LoadFunctions(path string) ([]*graph.Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fragment: %w", err)
	}

	var fns []*graph.Function

	if err := decodeArray(data, &fns); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return fns, nil
}

// LoadClasses reads one IPM fragment file.
func LoadClasses(path string) ([]graph.ClassRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fragment: %w", err)
	}

	var classes []graph.ClassRecord

	if err := decodeArray(data, &classes); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return classes, nil
}
