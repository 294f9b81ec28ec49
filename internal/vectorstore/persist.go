package vectorstore

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/retrieverd/internal/document"
)

// Persisted artifact names. One generation directory holds the three
// coupled artifacts; the CURRENT file names the live generation and is
// swapped by rename so readers see fully-old or fully-new artifacts.
const (
	indexFile   = "index.bin"
	idMapFile   = "id_map.json"
	docsFile    = "docs.json"
	currentFile = "CURRENT"
	genPrefix   = "gen-"
)

// persistedIndex is the gob representation of the flat index.
type persistedIndex struct {
	Dim     int
	Vectors [][]float32
}

// saveGeneration writes a new generation directory under tenantDir and
// atomically swaps the CURRENT pointer to it. Previous generations are
// pruned after the swap.
func saveGeneration(tenantDir string, gen *generation) error {
	genName := genPrefix + uuid.NewString()
	genDir := filepath.Join(tenantDir, genName)
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return fmt.Errorf("creating generation dir: %w", err)
	}

	if err := writeIndex(filepath.Join(genDir, indexFile), gen.index); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(genDir, idMapFile), gen.rows); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(genDir, docsFile), gen.registryDocs()); err != nil {
		return err
	}

	// Swap the pointer: write-temp-then-rename is atomic on POSIX.
	tmp := filepath.Join(tenantDir, currentFile+".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, []byte(genName), 0o644); err != nil {
		return fmt.Errorf("writing current pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(tenantDir, currentFile)); err != nil {
		return fmt.Errorf("swapping current pointer: %w", err)
	}

	pruneGenerations(tenantDir, genName)
	return nil
}

// loadGeneration reads the generation named by CURRENT. Returns an error
// satisfying os.IsNotExist when no store has been persisted for the tenant.
func loadGeneration(tenantDir string) (*generation, error) {
	current, err := os.ReadFile(filepath.Join(tenantDir, currentFile))
	if err != nil {
		return nil, err
	}
	genDir := filepath.Join(tenantDir, strings.TrimSpace(string(current)))

	index, err := readIndex(filepath.Join(genDir, indexFile))
	if err != nil {
		return nil, err
	}

	var rows map[string]int
	if err := readJSON(filepath.Join(genDir, idMapFile), &rows); err != nil {
		return nil, err
	}

	var docs []document.Document
	if err := readJSON(filepath.Join(genDir, docsFile), &docs); err != nil {
		return nil, err
	}

	gen := &generation{
		index:  index,
		rowIDs: make([]string, index.rows()),
		rows:   rows,
		docs:   make(map[string]document.Document, len(docs)),
		order:  make([]string, 0, len(docs)),
	}
	for id, row := range rows {
		if row < 0 || row >= len(gen.rowIDs) {
			return nil, fmt.Errorf("%w: id %q maps to row %d of %d", ErrCorruptArtifacts, id, row, len(gen.rowIDs))
		}
		gen.rowIDs[row] = id
	}
	for _, doc := range docs {
		gen.docs[doc.ID] = doc
		gen.order = append(gen.order, doc.ID)
	}

	if err := gen.validate(); err != nil {
		return nil, err
	}
	return gen, nil
}

// pruneGenerations removes generation directories other than keep.
// Best effort; a failed prune leaves garbage, not corruption.
func pruneGenerations(tenantDir, keep string) {
	entries, err := os.ReadDir(tenantDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) || e.Name() == keep {
			continue
		}
		_ = os.RemoveAll(filepath.Join(tenantDir, e.Name()))
	}
}

func writeIndex(path string, ix *flatIndex) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(persistedIndex{Dim: ix.dim, Vectors: ix.vectors}); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return f.Sync()
}

func readIndex(path string) (*flatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var p persistedIndex
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	return &flatIndex{dim: p.Dim, vectors: p.Vectors}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
