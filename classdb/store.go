// Package classdb is a persistent class store. Class images are kept in a
// SQLite database, keyed by class name, and can be loaded into a VM in any
// order.
package classdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chazu/ujvm/pkg/classfile"
	"github.com/chazu/ujvm/vm"
	"github.com/chazu/ujvm/vm/dist"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("ujvm.classdb")

// ErrClassNotFound indicates the requested class is not in the store.
var ErrClassNotFound = errors.New("class not found")

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	classes    INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS classes (
	name    TEXT PRIMARY KEY,
	format  TEXT NOT NULL,
	super   TEXT NOT NULL,
	hash    BLOB NOT NULL,
	deps    TEXT NOT NULL,
	content BLOB NOT NULL,
	batch   TEXT NOT NULL REFERENCES batches(id)
);
CREATE INDEX IF NOT EXISTS classes_batch ON classes(batch);
`

// Store is a class store backed by one SQLite file.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Entry describes one stored class.
type Entry struct {
	Name   string
	Format string
	Super  string
	Hash   [32]byte
	Size   int
	Batch  uuid.UUID
}

// Batch records one import.
type Batch struct {
	ID      uuid.UUID
	Source  string
	Classes int
	Created time.Time
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	log.Debugf("opened class store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Import stores class images as one batch, replacing classes of the same
// name. Every image is validated before anything is written.
func (s *Store) Import(source string, images [][]byte) (uuid.UUID, error) {
	type row struct {
		chunk *dist.Chunk
		info  *classfile.Info
	}
	rows := make([]row, 0, len(images))
	for i, img := range images {
		info, err := classfile.Inspect(img)
		if err != nil {
			return uuid.Nil, fmt.Errorf("image %d of %s: %w", i, source, err)
		}
		c, err := dist.ClassToChunk(img)
		if err != nil {
			return uuid.Nil, fmt.Errorf("image %d of %s: %w", i, source, err)
		}
		rows = append(rows, row{c, info})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	tx, err := s.db.Begin()
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO batches (id, source, classes, created_at) VALUES (?, ?, ?, ?)",
		id.String(), source, len(rows), time.Now().Unix()); err != nil {
		return uuid.Nil, fmt.Errorf("recording batch: %w", err)
	}
	for _, r := range rows {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO classes (name, format, super, hash, deps, content, batch) VALUES (?, ?, ?, ?, ?, ?, ?)",
			r.chunk.Name, r.info.Format.String(), r.info.Super, r.chunk.Hash[:],
			strings.Join(r.chunk.Dependencies, " "), r.chunk.Content, id.String(),
		); err != nil {
			return uuid.Nil, fmt.Errorf("storing %s: %w", r.chunk.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("committing import: %w", err)
	}
	log.Infof("imported %d classes from %s as batch %s", len(rows), source, id)
	return id, nil
}

// ImportFiles imports class files and containers (.ujcc), one batch per
// file.
func (s *Store) ImportFiles(paths []string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return ids, fmt.Errorf("reading %s: %w", p, err)
		}
		images := [][]byte{data}
		if strings.EqualFold(filepath.Ext(p), ".ujcc") {
			if images, err = classfile.Unpack(data); err != nil {
				return ids, fmt.Errorf("%s: %w", p, err)
			}
		}
		id, err := s.Import(p, images)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Get returns the image of one class.
func (s *Store) Get(name string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRow("SELECT content FROM classes WHERE name = ?", name).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
		}
		return nil, fmt.Errorf("querying class: %w", err)
	}
	return content, nil
}

// Delete removes one class.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM classes WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting class: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return nil
}

// List returns every stored class ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, format, super, hash, length(content), batch FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var hash []byte
		var batch string
		if err := rows.Scan(&e.Name, &e.Format, &e.Super, &hash, &e.Size, &batch); err != nil {
			return nil, fmt.Errorf("scanning class: %w", err)
		}
		copy(e.Hash[:], hash)
		if e.Batch, err = uuid.Parse(batch); err != nil {
			return nil, fmt.Errorf("class %s: bad batch id: %w", e.Name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Batches returns the import history, oldest first.
func (s *Store) Batches() ([]Batch, error) {
	rows, err := s.db.Query("SELECT id, source, classes, created_at FROM batches ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		var id string
		var created int64
		if err := rows.Scan(&id, &b.Source, &b.Classes, &created); err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		if b.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad batch id %q: %w", id, err)
		}
		b.Created = time.Unix(created, 0)
		out = append(out, b)
	}
	return out, rows.Err()
}

// chunks returns every stored class as a distribution chunk carrying the
// hash recorded at import.
func (s *Store) chunks() ([]*dist.Chunk, error) {
	rows, err := s.db.Query("SELECT name, hash, deps, content FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("reading classes: %w", err)
	}
	defer rows.Close()

	var out []*dist.Chunk
	for rows.Next() {
		c := &dist.Chunk{Type: dist.ChunkClass}
		var hash []byte
		var deps string
		if err := rows.Scan(&c.Name, &hash, &deps, &c.Content); err != nil {
			return nil, fmt.Errorf("scanning class: %w", err)
		}
		copy(c.Hash[:], hash)
		c.Dependencies = strings.Fields(deps)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadInto loads every stored class not already registered in v. Each
// image is checked against its recorded hash first. Classes may be stored
// in any order; dependencies are resolved by the VM's multi-pass loader.
func (s *Store) LoadInto(v *vm.VM) ([]*vm.Class, error) {
	all, err := s.chunks()
	if err != nil {
		return nil, err
	}
	var pending []*dist.Chunk
	for _, c := range all {
		if v.FindClassByName(c.Name) != nil {
			log.Debugf("%s already loaded, skipping", c.Name)
			continue
		}
		pending = append(pending, c)
	}
	return dist.LoadChunks(v, pending)
}

// Bundle returns root and every stored class it depends on, dependencies
// first. Dependencies missing from the store are left out; the receiving
// VM is expected to provide them.
func (s *Store) Bundle(root string) ([]*dist.Chunk, error) {
	all, err := s.chunks()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*dist.Chunk, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}
	if byName[root] == nil {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, root)
	}
	names := dist.TransitiveClosure(root, byName)
	out := make([]*dist.Chunk, len(names))
	for i, n := range names {
		out[i] = byName[n]
	}
	return out, nil
}
