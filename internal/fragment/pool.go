package fragment

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/exceptrace/internal/graph"
	"github.com/Sumatoshi-tech/exceptrace/pkg/mapx"
)

// fragmentExtension is the suffix of fragment files under the cache dirs.
const fragmentExtension = ".json"

// TUError records a per-TU ingest failure in non-strict mode.
type TUError struct {
	Path string
	Err  error
}

func (e TUError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// DirLoader reads every fragment file under a directory, fanning the parse
// work out across Jobs workers. Merging stays serial on the caller's side;
// the loader only produces per-file record slices.
type DirLoader struct {
	// Jobs is the worker count; values below 1 mean serial.
	Jobs int

	// Strict aborts the whole load on the first failing file.
	Strict bool

	// ValidateSchemas additionally checks each payload against the wire
	// schema before decoding. Implied by Strict.
	ValidateSchemas bool

	Log *slog.Logger
}

func (l *DirLoader) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}

	return slog.Default()
}

func (l *DirLoader) workers() int {
	if l.Jobs < 1 {
		return 1
	}

	return l.Jobs
}

// ListFragments returns the fragment files under root, sorted, so merge
// order is reproducible run to run.
func ListFragments(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && strings.HasSuffix(path, fragmentExtension) {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("scan fragment dir: %w", err)
	}

	sort.Strings(files)

	return files, nil
}

// LoadFunctions ingests every ICG fragment under root. In non-strict mode
// failing files are reported in the TUError slice and skipped.
func (l *DirLoader) LoadFunctions(ctx context.Context, root string) ([][]*graph.Function, []TUError, error) {
	var (
		batches [][]*graph.Function
		failed  []TUError
		byPath  = make(map[string][]*graph.Function)
	)

	err := l.loadDir(ctx, root, ICGSchema, func(path string, data []byte) error {
		var fns []*graph.Function

		if err := decodeArray(data, &fns); err != nil {
			return err
		}

		byPath[path] = fns

		return nil
	}, &failed)

	for _, path := range mapx.SortedKeys(byPath) {
		batches = append(batches, byPath[path])
	}

	return batches, failed, err
}

// LoadClasses ingests every IPM fragment under root.
func (l *DirLoader) LoadClasses(ctx context.Context, root string) ([][]graph.ClassRecord, []TUError, error) {
	var (
		batches [][]graph.ClassRecord
		failed  []TUError
		byPath  = make(map[string][]graph.ClassRecord)
	)

	err := l.loadDir(ctx, root, IPMSchema, func(path string, data []byte) error {
		var classes []graph.ClassRecord

		if err := decodeArray(data, &classes); err != nil {
			return err
		}

		byPath[path] = classes

		return nil
	}, &failed)

	for _, path := range mapx.SortedKeys(byPath) {
		batches = append(batches, byPath[path])
	}

	return batches, failed, err
}

// loadDir fans file reads out across the worker pool and funnels decoded
// batches through consume under a mutex. consume runs in completion order;
// LoadFunctions and LoadClasses key the decoded batches by path and return
// them in sorted path order, so the merge order does not depend on worker
// scheduling.
func (l *DirLoader) loadDir(
	ctx context.Context,
	root, schemaJSON string,
	consume func(path string, data []byte) error,
	failed *[]TUError,
) error {
	files, err := ListFragments(root)
	if err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		fatal error
	)

	jobs := make(chan string)

	worker := func() {
		defer wg.Done()

		for path := range jobs {
			if ctx.Err() != nil {
				continue
			}

			mu.Lock()
			aborted := fatal != nil
			mu.Unlock()

			if aborted {
				continue
			}

			loadErr := l.loadFile(path, schemaJSON, consume, &mu, failed)
			if loadErr != nil && l.Strict {
				mu.Lock()

				if fatal == nil {
					fatal = loadErr
				}

				mu.Unlock()
			}
		}
	}

	wg.Add(l.workers())

	for range l.workers() {
		go worker()
	}

	for _, path := range files {
		jobs <- path
	}

	close(jobs)
	wg.Wait()

	if fatal != nil {
		return fatal
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fragment load interrupted: %w", err)
	}

	return nil
}

// loadFile reads, optionally validates, and decodes one fragment file.
func (l *DirLoader) loadFile(
	path, schemaJSON string,
	consume func(path string, data []byte) error,
	mu *sync.Mutex,
	failed *[]TUError,
) error {
	data, err := os.ReadFile(path)
	if err == nil && (l.ValidateSchemas || l.Strict) {
		err = ValidateSchema(data, schemaJSON)
	}

	if err == nil {
		mu.Lock()
		err = consume(path, data)
		mu.Unlock()
	}

	if err != nil {
		l.logger().Warn("fragment rejected", "path", path, "err", err)

		mu.Lock()
		*failed = append(*failed, TUError{Path: path, Err: err})
		mu.Unlock()

		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}
