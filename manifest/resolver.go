package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ujvm.manifest")

// ResolvedPath is one class file or container found on the classpath.
type ResolvedPath struct {
	Path      string // absolute filesystem path
	Container bool   // a packed .ujcc container
	From      string // the classpath entry that produced it
}

// Resolver expands classpath entries into concrete files. An entry may
// name a file, a glob, or a directory. A directory is searched recursively
// for .class, .ujc and .ujcc files; if it holds its own ujvm.toml, that
// config's classpath is resolved in its place.
type Resolver struct {
	manifest *Manifest
	seen     map[string]bool
	visiting map[string]bool
}

// NewResolver creates a resolver for m's classpath.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{
		manifest: m,
		seen:     make(map[string]bool),
		visiting: make(map[string]bool),
	}
}

// Resolve returns the classpath in load order: class files before
// containers, each group in entry order. A path reached twice is kept
// once.
func (r *Resolver) Resolve() ([]ResolvedPath, error) {
	files, containers, err := r.resolveManifest(r.manifest)
	if err != nil {
		return nil, err
	}
	return append(files, containers...), nil
}

// Paths is Resolve reduced to the paths vm.LoadFiles takes.
func (r *Resolver) Paths() ([]string, error) {
	res, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(res))
	for i, p := range res {
		out[i] = p.Path
	}
	return out, nil
}

func (r *Resolver) resolveManifest(m *Manifest) (files, containers []ResolvedPath, err error) {
	dir, err := filepath.Abs(m.Dir)
	if err != nil {
		return nil, nil, err
	}
	if r.visiting[dir] {
		return nil, nil, fmt.Errorf("classpath cycle through %s", dir)
	}
	r.visiting[dir] = true
	defer delete(r.visiting, dir)

	for _, entry := range m.abs(append(append([]string(nil), m.Classpath.Files...), m.Classpath.Containers...)) {
		f, c, err := r.resolveEntry(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("classpath entry %s: %w", entry, err)
		}
		files = append(files, f...)
		containers = append(containers, c...)
	}
	return files, containers, nil
}

func (r *Resolver) resolveEntry(entry string) (files, containers []ResolvedPath, err error) {
	var matches []string
	if strings.ContainsAny(entry, "*?[") {
		if matches, err = filepath.Glob(entry); err != nil {
			return nil, nil, err
		}
		if len(matches) == 0 {
			return nil, nil, fmt.Errorf("no files match")
		}
	} else {
		matches = []string{entry}
	}

	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil {
			return nil, nil, err
		}
		if !info.IsDir() {
			r.add(p, entry, &files, &containers)
			continue
		}

		if _, err := os.Stat(filepath.Join(p, FileName)); err == nil {
			sub, err := Load(p)
			if err != nil {
				return nil, nil, err
			}
			log.Debugf("%s: using classpath of %s", entry, filepath.Join(p, FileName))
			f, c, err := r.resolveManifest(sub)
			if err != nil {
				return nil, nil, err
			}
			files = append(files, f...)
			containers = append(containers, c...)
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && classExt(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		sort.Strings(found)
		for _, f := range found {
			r.add(f, entry, &files, &containers)
		}
	}
	return files, containers, nil
}

func (r *Resolver) add(path, from string, files, containers *[]ResolvedPath) {
	if r.seen[path] {
		return
	}
	r.seen[path] = true
	rp := ResolvedPath{Path: path, From: from, Container: strings.EqualFold(filepath.Ext(path), ".ujcc")}
	if rp.Container {
		*containers = append(*containers, rp)
	} else {
		*files = append(*files, rp)
	}
}

func classExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".class", ".ujc", ".ujcc":
		return true
	}
	return false
}
