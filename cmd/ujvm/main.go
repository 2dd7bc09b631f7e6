// ujvm CLI - runs, inspects and packages uJ class files
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/ujvm/classdb"
	"github.com/chazu/ujvm/manifest"
	"github.com/chazu/ujvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("ujvm.cli")

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string   { return fmt.Sprint(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }
func (v *verbosity) Set(string) error { *v++; return nil }

func main() {
	var verbose verbosity
	flag.Var(&verbose, "v", "Increase log verbosity (repeatable)")
	dir := flag.String("C", ".", "Directory to search for "+manifest.FileName)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ujvm [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run [class [method [desc]]]   Load the classpath and run the entry method\n")
		fmt.Fprintf(os.Stderr, "  disasm <file>...              Print class metadata and code\n")
		fmt.Fprintf(os.Stderr, "  pack -o <out.ujcc> <file>...  Write a class container\n")
		fmt.Fprintf(os.Stderr, "  store import|list|rm ...      Manage the SQLite class store\n")
		fmt.Fprintf(os.Stderr, "  snapshot -n <steps> -o <file> Run some steps and dump VM state as CBOR\n")
		fmt.Fprintf(os.Stderr, "  snapshot show <file>          Print a snapshot\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ujvm run                          # entry from ujvm.toml\n")
		fmt.Fprintf(os.Stderr, "  ujvm run demo/Main start ()I      # explicit entry\n")
		fmt.Fprintf(os.Stderr, "  ujvm pack -o lib.ujcc build/*.class\n")
		fmt.Fprintf(os.Stderr, "  ujvm store import lib.ujcc\n")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
	}
	level := m.Log.Verbosity + int(verbose)
	commonlog.Configure(level, nil)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		err = runCommand(m, rest)
	case "disasm":
		err = disasmCommand(os.Stdout, rest)
	case "pack":
		err = packCommand(rest)
	case "store":
		err = storeCommand(m, rest)
	case "snapshot":
		err = snapshotCommand(m, rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newVM creates a VM from the config and loads its classpath and class
// store.
func newVM(m *manifest.Manifest) (*vm.VM, error) {
	v, err := vm.New(m.Options())
	if err != nil {
		return nil, err
	}
	paths, err := manifest.NewResolver(m).Paths()
	if err != nil {
		v.Close()
		return nil, err
	}
	if len(paths) > 0 {
		if _, err := v.LoadFiles(paths); err != nil {
			v.Close()
			return nil, err
		}
	}
	if p := m.StorePath(); p != "" {
		s, err := classdb.Open(p)
		if err != nil {
			v.Close()
			return nil, err
		}
		defer s.Close()
		if _, err := s.LoadInto(v); err != nil {
			v.Close()
			return nil, err
		}
	}
	return v, nil
}
