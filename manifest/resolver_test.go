package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte{0xCA, 0xFE}, 0644); err != nil {
		t.Fatal(err)
	}
}

func rel(t *testing.T, base string, paths []ResolvedPath) []string {
	t.Helper()
	var out []string
	for _, p := range paths {
		r, err := filepath.Rel(base, p.Path)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestResolveOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "build", "b", "B.class"))
	touch(t, filepath.Join(dir, "build", "a", "A.class"))
	touch(t, filepath.Join(dir, "build", "notes.txt"))
	touch(t, filepath.Join(dir, "build", "lib.ujcc"))
	touch(t, filepath.Join(dir, "rt.ujcc"))
	touch(t, filepath.Join(dir, "x", "X.ujc"))
	touch(t, filepath.Join(dir, "x", "Y.ujc"))

	m := Default()
	m.Dir = dir
	m.Classpath.Files = []string{"build", "x/*.ujc", "build/a/A.class"}
	m.Classpath.Containers = []string{"rt.ujcc"}

	res, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := rel(t, dir, res)
	want := []string{"build/a/A.class", "build/b/B.class", "x/X.ujc", "x/Y.ujc", "build/lib.ujcc", "rt.ujcc"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("order = %v, want %v", got, want)
	}
	if !res[4].Container || res[0].Container {
		t.Errorf("container flags wrong: %+v", res)
	}
	if res[0].From != filepath.Join(dir, "build") {
		t.Errorf("From = %q", res[0].From)
	}
}

func TestResolveNestedConfig(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "vendor", "lib")
	touch(t, filepath.Join(sub, "out", "L.class"))
	touch(t, filepath.Join(sub, "ignored", "I.class"))
	writeManifest(t, sub, "[classpath]\nfiles = [\"out\"]\n")

	m := Default()
	m.Dir = dir
	m.Classpath.Files = []string{"vendor/lib"}

	res, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := rel(t, dir, res)
	if len(got) != 1 || got[0] != "vendor/lib/out/L.class" {
		t.Errorf("resolved %v", got)
	}
}

func TestResolveCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	if err := os.MkdirAll(a, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(b, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, a, "[classpath]\nfiles = [\"../b\"]\n")
	writeManifest(t, b, "[classpath]\nfiles = [\"../a\"]\n")

	m, err := Load(a)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewResolver(m).Resolve()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("err = %v, want cycle", err)
	}
}

func TestResolveMissing(t *testing.T) {
	m := Default()
	m.Dir = t.TempDir()
	for _, entry := range []string{"nope.class", "none/*.class"} {
		m.Classpath.Files = []string{entry}
		if _, err := NewResolver(m).Paths(); err == nil {
			t.Errorf("%s: expected error", entry)
		}
	}
}
