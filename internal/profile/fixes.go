package profile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Fix is one reviewed exception-handling fix mined from a commit history.
// Contexts holds compact context levels after remapping and expansion.
type Fix struct {
	Contexts       []int
	CallerNoexcept bool
}

// FixCount tallies fixes at one context level, split by whether the fixed
// caller was declared noexcept.
type FixCount struct {
	Total    int `json:"total"`
	Noexcept int `json:"noexcept"`
}

// FixStats aggregates reviewed fixes per compact context level.
type FixStats struct {
	Fixes      int              `json:"fixes"`
	PerContext map[int]FixCount `json:"per_context"`
}

// fixRecord is the wire form of one fix_<n> entry.
type fixRecord struct {
	Context        []int `json:"Context"`
	CallerNoexcept bool  `json:"Caller.is noexcept"`
}

// repoRecord is the wire form of one repository entry in the reviewed-fixes
// input: commits are objects whose fix_<n> keys carry the fix records.
type repoRecord struct {
	Commits []map[string]json.RawMessage `json:"commits"`
}

// fixKeyPrefix marks the fix entries inside a commit object.
const fixKeyPrefix = "fix_"

// ReadFixes parses the reviewed-fixes input, remapping legacy context numbers
// to the compact encoding and expanding each fix's context set through the
// refinement relation.
func ReadFixes(r io.Reader) ([]Fix, error) {
	var repos []repoRecord

	if err := json.NewDecoder(r).Decode(&repos); err != nil {
		return nil, fmt.Errorf("decode reviewed fixes: %w", err)
	}

	var fixes []Fix

	for _, repo := range repos {
		for _, commit := range repo.Commits {
			for key, raw := range commit {
				if !strings.HasPrefix(key, fixKeyPrefix) {
					continue
				}

				var rec fixRecord

				if err := json.Unmarshal(raw, &rec); err != nil {
					return nil, fmt.Errorf("decode %s: %w", key, err)
				}

				compact := make([]int, 0, len(rec.Context))
				for _, legacy := range rec.Context {
					compact = append(compact, RemapLegacy(legacy))
				}

				fixes = append(fixes, Fix{
					Contexts:       ExpandContexts(compact),
					CallerNoexcept: rec.CallerNoexcept,
				})
			}
		}
	}

	return fixes, nil
}

// LoadFixes reads the reviewed-fixes file at path.
func LoadFixes(path string) ([]Fix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reviewed fixes: %w", err)
	}
	defer f.Close()

	return ReadFixes(f)
}

// CountFixes tallies how many fixes touch each compact context level.
func CountFixes(fixes []Fix) FixStats {
	stats := FixStats{
		Fixes:      len(fixes),
		PerContext: make(map[int]FixCount, ContextLevels),
	}

	for _, fix := range fixes {
		for _, c := range fix.Contexts {
			count := stats.PerContext[c]
			count.Total++

			if fix.CallerNoexcept {
				count.Noexcept++
			}

			stats.PerContext[c] = count
		}
	}

	return stats
}
