package dist

import (
	"fmt"

	"github.com/chazu/ujvm/pkg/classfile"
	"github.com/chazu/ujvm/vm"
)

// TransitiveClosure returns the names reachable from root through chunk
// dependencies, dependencies first. Names without a chunk (classes the
// receiving VM registers natively) are skipped.
func TransitiveClosure(root string, chunks map[string]*Chunk) []string {
	seen := make(map[string]bool)
	var result []string
	var walk func(string)

	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		c, ok := chunks[name]
		if !ok {
			return
		}
		for _, d := range c.Dependencies {
			walk(d)
		}
		result = append(result, name)
	}

	walk(root)
	return result
}

// LoadChunks verifies every chunk and loads its classes into v. Chunks may
// arrive in any order; the VM's multi-pass loader sorts out dependencies.
func LoadChunks(v *vm.VM, chunks []*Chunk) ([]*vm.Class, error) {
	var srcs []vm.ByteSource
	for _, c := range chunks {
		if err := c.Verify(); err != nil {
			return nil, err
		}
		switch c.Type {
		case ChunkClass:
			srcs = append(srcs, vm.MemorySource(c.Content))
		case ChunkContainer:
			recs, err := unpackSources(c.Content)
			if err != nil {
				return nil, fmt.Errorf("dist: chunk %s: %w", c.Name, err)
			}
			srcs = append(srcs, recs...)
		default:
			return nil, fmt.Errorf("dist: chunk %s has unknown type %d", c.Name, c.Type)
		}
	}
	return v.LoadClasses(srcs)
}

func unpackSources(container []byte) ([]vm.ByteSource, error) {
	images, err := classfile.Unpack(container)
	if err != nil {
		return nil, err
	}
	srcs := make([]vm.ByteSource, len(images))
	for i, img := range images {
		srcs[i] = vm.MemorySource(img)
	}
	return srcs, nil
}
