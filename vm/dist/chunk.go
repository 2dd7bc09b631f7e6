// Package dist implements the wire formats used to move ujvm state between
// processes: content-addressed class chunks, and thread and VM snapshots.
// Everything is encoded as canonical CBOR.
package dist

import (
	"crypto/sha256"
	"fmt"

	"github.com/chazu/ujvm/pkg/classfile"
)

// ChunkType identifies the kind of content in a Chunk.
type ChunkType uint8

const (
	ChunkClass     ChunkType = 1
	ChunkContainer ChunkType = 2
)

// Chunk is the unit of class distribution: a class image plus its content
// hash and the names of the classes it needs loaded first.
type Chunk struct {
	Hash         [32]byte  `cbor:"1,keyasint"`
	Type         ChunkType `cbor:"2,keyasint"`
	Name         string    `cbor:"3,keyasint"`
	Content      []byte    `cbor:"4,keyasint"`
	Dependencies []string  `cbor:"5,keyasint,omitempty"` // superclass, then interfaces
}

// ClassToChunk wraps a class image in either format.
func ClassToChunk(image []byte) (*Chunk, error) {
	info, err := classfile.Inspect(image)
	if err != nil {
		return nil, fmt.Errorf("dist: %w", err)
	}
	var deps []string
	if info.Super != "" {
		deps = append(deps, info.Super)
	}
	deps = append(deps, info.Interfaces...)
	return &Chunk{
		Hash:         sha256.Sum256(image),
		Type:         ChunkClass,
		Name:         info.Name,
		Content:      append([]byte(nil), image...),
		Dependencies: deps,
	}, nil
}

// ContainerToChunk wraps a packed container. Its dependencies are whatever
// its classes need that the container does not provide itself.
func ContainerToChunk(name string, container []byte) (*Chunk, error) {
	images, err := classfile.Unpack(container)
	if err != nil {
		return nil, fmt.Errorf("dist: %w", err)
	}
	provided := make(map[string]bool)
	var needed []string
	for _, img := range images {
		c, err := ClassToChunk(img)
		if err != nil {
			return nil, err
		}
		provided[c.Name] = true
		needed = append(needed, c.Dependencies...)
	}
	var deps []string
	seen := make(map[string]bool)
	for _, d := range needed {
		if !provided[d] && !seen[d] {
			seen[d] = true
			deps = append(deps, d)
		}
	}
	return &Chunk{
		Hash:         sha256.Sum256(container),
		Type:         ChunkContainer,
		Name:         name,
		Content:      append([]byte(nil), container...),
		Dependencies: deps,
	}, nil
}

// Verify checks the chunk's content against its declared hash.
func (c *Chunk) Verify() error {
	if got := sha256.Sum256(c.Content); got != c.Hash {
		return fmt.Errorf("dist: hash mismatch for %s: declared %x, computed %x", c.Name, c.Hash, got)
	}
	return nil
}
