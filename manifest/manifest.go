// Package manifest handles ujvm.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/ujvm/heap"
	"github.com/chazu/ujvm/numeric"
	"github.com/chazu/ujvm/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "ujvm.toml"

// Defaults applied to keys left unset.
const (
	DefaultHeapSize  = 256 << 10
	DefaultVerbosity = 1
	DefaultMethod    = "main"
	DefaultDesc      = "()V"
)

// Manifest represents a ujvm.toml configuration.
type Manifest struct {
	VM        VMConfig   `toml:"vm" json:"vm"`
	Heap      HeapConfig `toml:"heap" json:"heap"`
	Features  Features   `toml:"features" json:"features"`
	Classpath Classpath  `toml:"classpath" json:"classpath"`
	Entry     Entry      `toml:"entry" json:"entry"`
	Log       LogConfig  `toml:"log" json:"log"`

	// Dir is the directory containing the ujvm.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// VMConfig tunes the interpreter.
type VMConfig struct {
	StackSlots      int  `toml:"stack_slots" json:"stack_slots"`
	Quantum         int  `toml:"quantum" json:"quantum"`
	FastClassSearch bool `toml:"fast_class_search" json:"fast_class_search"`
}

// HeapConfig sizes the arena.
type HeapConfig struct {
	Size int `toml:"size" json:"size"`
}

// Features switches optional opcode groups. Unset means enabled.
type Features struct {
	Long   *bool `toml:"long" json:"long,omitempty"`
	Float  *bool `toml:"float" json:"float,omitempty"`
	Double *bool `toml:"double" json:"double,omitempty"`
}

// Classpath lists where classes come from. Paths are relative to Dir.
type Classpath struct {
	Files      []string `toml:"files" json:"files,omitempty"`
	Containers []string `toml:"containers" json:"containers,omitempty"`
	Store      string   `toml:"store" json:"store,omitempty"`
}

// Entry names the method `ujvm run` starts.
type Entry struct {
	Class  string `toml:"class" json:"class,omitempty"`
	Method string `toml:"method" json:"method"`
	Desc   string `toml:"desc" json:"desc"`
}

// LogConfig sets the commonlog verbosity.
type LogConfig struct {
	Verbosity int `toml:"verbosity" json:"verbosity"`
}

// Load parses, defaults and validates the ujvm.toml in dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes TOML, applies defaults and validates the result. Dir is left
// empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("unknown key %s", undec[0])
	}
	m.applyDefaults(md)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Default returns the configuration used when no ujvm.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults(toml.MetaData{})
	return m
}

func (m *Manifest) applyDefaults(md toml.MetaData) {
	if m.VM.StackSlots == 0 {
		m.VM.StackSlots = vm.DefaultStackSlots
	}
	if m.VM.Quantum == 0 {
		m.VM.Quantum = vm.DefaultQuantum
	}
	if m.Heap.Size == 0 {
		m.Heap.Size = DefaultHeapSize
	}
	for _, f := range []**bool{&m.Features.Long, &m.Features.Float, &m.Features.Double} {
		if *f == nil {
			on := true
			*f = &on
		}
	}
	if m.Entry.Method == "" {
		m.Entry.Method = DefaultMethod
	}
	if m.Entry.Desc == "" {
		m.Entry.Desc = DefaultDesc
	}
	if !md.IsDefined("log", "verbosity") {
		m.Log.Verbosity = DefaultVerbosity
	}
}

// FindAndLoad walks up from startDir to find a ujvm.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) abs(paths []string) []string {
	var out []string
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(m.Dir, p)
		}
		out = append(out, p)
	}
	return out
}

// ClassPaths returns absolute paths of the configured class files followed
// by the containers, in the order vm.LoadFiles takes them.
func (m *Manifest) ClassPaths() []string {
	return append(m.abs(m.Classpath.Files), m.abs(m.Classpath.Containers)...)
}

// StorePath returns the absolute class store path, or "" if none is set.
func (m *Manifest) StorePath() string {
	if m.Classpath.Store == "" {
		return ""
	}
	return m.abs([]string{m.Classpath.Store})[0]
}

// Options builds VM options with a fresh arena of the configured size.
func (m *Manifest) Options() vm.Options {
	return vm.Options{
		Heap:            heap.NewArena(m.Heap.Size),
		Long:            numeric.NativeLong{},
		Double:          numeric.NativeDouble{},
		DisableLong:     !*m.Features.Long,
		DisableFloat:    !*m.Features.Float,
		DisableDouble:   !*m.Features.Double,
		StackSlots:      m.VM.StackSlots,
		Quantum:         m.VM.Quantum,
		FastClassSearch: m.VM.FastClassSearch,
	}
}
