package dist

import (
	"fmt"

	"github.com/chazu/ujvm/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so equal values encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalChunk serializes a Chunk to CBOR bytes.
func MarshalChunk(c *Chunk) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// UnmarshalChunk deserializes a Chunk from CBOR bytes.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("dist: unmarshal chunk: %w", err)
	}
	return &c, nil
}

// MarshalThread serializes a thread snapshot.
func MarshalThread(s *vm.ThreadSnapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalThread deserializes a thread snapshot.
func UnmarshalThread(data []byte) (*vm.ThreadSnapshot, error) {
	var s vm.ThreadSnapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("dist: unmarshal thread: %w", err)
	}
	return &s, nil
}

// MarshalVM serializes a VM snapshot.
func MarshalVM(s *vm.VMSnapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalVM deserializes a VM snapshot.
func UnmarshalVM(data []byte) (*vm.VMSnapshot, error) {
	var s vm.VMSnapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("dist: unmarshal vm snapshot: %w", err)
	}
	return &s, nil
}

// SuspendThread removes t from its VM and returns the encoded snapshot.
func SuspendThread(v *vm.VM, t *vm.Thread) ([]byte, error) {
	s := v.Suspend(t)
	return MarshalThread(&s)
}

// ResumeThread decodes a thread snapshot and links it back into v.
func ResumeThread(v *vm.VM, data []byte) (*vm.Thread, error) {
	s, err := UnmarshalThread(data)
	if err != nil {
		return nil, err
	}
	return v.RestoreThread(*s)
}
