package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestName is the run manifest file written next to the shards.
const ManifestName = "run.yaml"

// PhaseTiming is the manifest form of one pipeline phase.
type PhaseTiming struct {
	Name     string        `yaml:"name"`
	Count    int           `yaml:"count"`
	Duration time.Duration `yaml:"duration"`
	Error    string        `yaml:"error,omitempty"`
	Skipped  bool          `yaml:"skipped,omitempty"`
}

// Manifest records what a run produced and under which settings, so a later
// profile invocation can tell what it is looking at.
type Manifest struct {
	StartedAt           time.Time     `yaml:"started_at"`
	Elapsed             time.Duration `yaml:"elapsed"`
	CompilationDatabase string        `yaml:"compilation_database,omitempty"`
	ExpandVirtualCalls  bool          `yaml:"expand_virtual_calls"`
	IncludeSystemHeader bool          `yaml:"include_system_header"`
	Strict              bool          `yaml:"strict"`
	Jobs                int           `yaml:"jobs"`
	Functions           int           `yaml:"functions"`
	PolymorphEntries    int           `yaml:"polymorph_entries"`
	CallGraphShards     int           `yaml:"call_graph_shards"`
	PolymorphShards     int           `yaml:"polymorph_shards"`
	FailedTUs           int           `yaml:"failed_tus"`
	Phases              []PhaseTiming `yaml:"phases"`
}

// PhasesFromOverview converts overview rows into manifest timings.
func PhasesFromOverview(o *Overview) []PhaseTiming {
	timings := make([]PhaseTiming, 0, len(o.phases))

	for _, p := range o.phases {
		timing := PhaseTiming{
			Name:     p.Name,
			Count:    p.Count,
			Duration: p.Duration,
			Skipped:  p.Skipped,
		}

		if p.Err != nil {
			timing.Error = p.Err.Error()
		}

		timings = append(timings, timing)
	}

	return timings
}

// WriteManifest writes the manifest to dir/ManifestName.
func WriteManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}
