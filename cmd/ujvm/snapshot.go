package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/chazu/ujvm/manifest"
	"github.com/chazu/ujvm/vm"
	"github.com/chazu/ujvm/vm/dist"
)

// snapshotCommand processes `ujvm snapshot -n <steps> -o <file>`. It starts
// the entry method, runs at most n scheduler steps and writes the VM state
// (classes and live threads) as CBOR. `ujvm snapshot show <file>` prints a
// written snapshot.
func snapshotCommand(m *manifest.Manifest, args []string) error {
	if len(args) == 2 && args[0] == "show" {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		s, err := describeSnapshot(data)
		if err != nil {
			return err
		}
		fmt.Print(s)
		return nil
	}

	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	steps := fs.Int("n", 1, "Scheduler steps to run before the snapshot")
	output := fs.String("o", "ujvm.snap", "Output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if m.Entry.Class == "" {
		return fmt.Errorf("no entry class: set [entry] class in %s", manifest.FileName)
	}

	v, err := newVM(m)
	if err != nil {
		return err
	}
	defer v.Close()

	data, err := snapshotEntry(v, m.Entry, *steps)
	if err != nil {
		return err
	}
	return os.WriteFile(*output, data, 0644)
}

func snapshotEntry(v *vm.VM, entry manifest.Entry, steps int) ([]byte, error) {
	cls := v.FindClassByName(entry.Class)
	if cls == nil {
		return nil, fmt.Errorf("class %s is not loaded", entry.Class)
	}
	t, err := v.NewThread(0)
	if err != nil {
		return nil, err
	}
	if err := v.ThreadGoto(t, cls, entry.Method, entry.Desc); err != nil {
		return nil, err
	}
	for i := 0; i < steps && v.CanRun(); i++ {
		if err := v.Step(); err != nil {
			var te *vm.ThreadError
			if !errors.As(err, &te) {
				return nil, err
			}
			log.Warningf("%v", err)
		}
	}
	snap := v.Snapshot()
	log.Infof("snapshot after %d instructions: %d classes, %d threads", snap.Instructions, len(snap.Classes), len(snap.Threads))
	return dist.MarshalVM(&snap)
}

// describeSnapshot summarizes a decoded snapshot, one line per thread.
func describeSnapshot(data []byte) (string, error) {
	snap, err := dist.UnmarshalVM(data)
	if err != nil {
		return "", err
	}
	s := fmt.Sprintf("vm %s: %d instructions, %d classes\n", snap.ID, snap.Instructions, len(snap.Classes))
	for _, t := range snap.Threads {
		s += fmt.Sprintf("  thread %d in %s pc=%d sp=%d\n", t.ID, t.ClassName, t.PC, len(t.Stack))
	}
	for _, t := range snap.Suspended {
		s += fmt.Sprintf("  thread %d suspended in %s pc=%d sp=%d\n", t.ID, t.ClassName, t.PC, len(t.Stack))
	}
	return s, nil
}
