// Package sink writes the completed analysis artifacts: polymorph and
// call-graph shards, the graph snapshot, the run manifest, profiling reports
// and the human-readable overview.
package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/exceptrace/internal/graph"
	"github.com/Sumatoshi-tech/exceptrace/internal/persist"
)

// ShardSize is the maximum number of entries per output file.
const ShardSize = 1000

// Shard file name prefixes.
const (
	polymorphPrefix = "pm"
	callGraphPrefix = "cg"
)

// SnapshotName is the file holding the compressed whole-graph snapshot.
const SnapshotName = "graph.json.lz4"

// writeShards partitions entries into files of at most ShardSize records,
// named <prefix>-<k>.json with k counting from 1. Returns the number of
// files written.
func writeShards[T any](dir, prefix string, entries []T) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	codec := persist.NewJSONCodec()
	files := 0

	for start := 0; start < len(entries); start += ShardSize {
		end := min(start+ShardSize, len(entries))

		files++
		path := filepath.Join(dir, fmt.Sprintf("%s-%d.json", prefix, files))

		if err := persist.Save(path, codec, entries[start:end]); err != nil {
			return files, fmt.Errorf("write shard %s: %w", path, err)
		}
	}

	return files, nil
}

// WritePolymorph dumps the polymorph table as pm-<k>.json shards, ordered by
// base-method USR.
func WritePolymorph(dir string, table graph.PolyTable) (int, error) {
	return writeShards(dir, polymorphPrefix, table.Sorted())
}

// WriteCallGraph dumps the call graph as cg-<k>.json shards, ordered by USR.
func WriteCallGraph(dir string, g *graph.Graph) (int, error) {
	return writeShards(dir, callGraphPrefix, g.SortedFunctions())
}

// Snapshot is the single-file form of the completed analysis, written with
// the LZ4 codec so profiling can re-run without touching the fragment cache.
type Snapshot struct {
	Functions []*graph.Function `json:"Function"`
	Polymorph []*graph.Poly     `json:"Polymorph"`
}

// WriteSnapshot persists the propagated graph and polymorph table to
// dir/SnapshotName.
func WriteSnapshot(dir string, g *graph.Graph, table graph.PolyTable) error {
	snap := Snapshot{
		Functions: g.SortedFunctions(),
		Polymorph: table.Sorted(),
	}

	return persist.Save(filepath.Join(dir, SnapshotName), persist.NewLZ4Codec(), snap)
}

// ReadSnapshot restores a graph previously written by WriteSnapshot.
func ReadSnapshot(dir string) (*graph.Graph, graph.PolyTable, error) {
	var snap Snapshot

	if err := persist.Load(filepath.Join(dir, SnapshotName), persist.NewLZ4Codec(), &snap); err != nil {
		return nil, nil, err
	}

	table := graph.NewPolyTable()
	for _, p := range snap.Polymorph {
		table[p.Name] = p
	}

	g := graph.NewGraph(table, false, nil)
	for _, fn := range snap.Functions {
		g.Functions[fn.USR] = fn
	}

	g.Relink()

	return g, table, nil
}
