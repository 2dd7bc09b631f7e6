package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[vm]
stack_slots = 512
quantum = 4
fast_class_search = true

[heap]
size = 65536

[features]
double = false

[classpath]
files = ["build/Main.class", "/abs/Lib.ujc"]
containers = ["rt.ujcc"]
store = "classes.db"

[entry]
class = "demo/Main"
method = "start"
desc = "()I"

[log]
verbosity = 0
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.VM.StackSlots != 512 || m.VM.Quantum != 4 || !m.VM.FastClassSearch {
		t.Errorf("vm = %+v", m.VM)
	}
	if m.Heap.Size != 65536 {
		t.Errorf("heap size = %d", m.Heap.Size)
	}
	if !*m.Features.Long || !*m.Features.Float || *m.Features.Double {
		t.Errorf("features long=%t float=%t double=%t", *m.Features.Long, *m.Features.Float, *m.Features.Double)
	}
	if m.Entry.Class != "demo/Main" || m.Entry.Method != "start" || m.Entry.Desc != "()I" {
		t.Errorf("entry = %+v", m.Entry)
	}
	if m.Log.Verbosity != 0 {
		t.Errorf("explicit verbosity 0 overridden: %d", m.Log.Verbosity)
	}

	paths := m.ClassPaths()
	want := []string{filepath.Join(m.Dir, "build/Main.class"), "/abs/Lib.ujc", filepath.Join(m.Dir, "rt.ujcc")}
	if len(paths) != len(want) {
		t.Fatalf("ClassPaths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	if m.StorePath() != filepath.Join(m.Dir, "classes.db") {
		t.Errorf("StorePath = %q", m.StorePath())
	}

	opts := m.Options()
	if opts.Heap == nil || opts.StackSlots != 512 || !opts.DisableDouble || opts.DisableLong {
		t.Errorf("Options = %+v", opts)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[entry]
class = "demo/Main"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.VM.StackSlots != 256 || m.VM.Quantum != 10 {
		t.Errorf("vm defaults = %+v", m.VM)
	}
	if m.Heap.Size != DefaultHeapSize {
		t.Errorf("heap default = %d", m.Heap.Size)
	}
	if m.Entry.Method != "main" || m.Entry.Desc != "()V" {
		t.Errorf("entry defaults = %+v", m.Entry)
	}
	if m.Log.Verbosity != DefaultVerbosity {
		t.Errorf("verbosity default = %d", m.Log.Verbosity)
	}
	if m.StorePath() != "" {
		t.Errorf("StorePath = %q, want empty", m.StorePath())
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestSchemaRejects(t *testing.T) {
	tests := []struct {
		name, toml, want string
	}{
		{"stack too small", "[vm]\nstack_slots = 8\n", "stack_slots"},
		{"stack too large", "[vm]\nstack_slots = 70000\n", "stack_slots"},
		{"negative quantum", "[vm]\nquantum = -1\n", "quantum"},
		{"tiny heap", "[heap]\nsize = 100\n", "size"},
		{"bad descriptor", "[entry]\ndesc = \"main\"\n", "desc"},
		{"dotted class", "[entry]\nclass = \"demo.Main\"\n", "class"},
		{"verbosity", "[log]\nverbosity = 9\n", "verbosity"},
		{"built-in entry", "[entry]\nclass = \"java/lang/Object\"\n", "entry.class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[vm]\nstack = 5\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Errorf("err = %v, want unknown key", err)
	}
}

func TestParseSyntaxError(t *testing.T) {
	if _, err := Parse([]byte("[vm\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[entry]\nclass = \"found/Main\"\n")

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Entry.Class != "found/Main" {
		t.Errorf("entry class = %q, want found/Main", m.Entry.Class)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no ujvm.toml exists")
	}
}
