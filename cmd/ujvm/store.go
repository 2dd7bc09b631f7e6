package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/chazu/ujvm/classdb"
	"github.com/chazu/ujvm/manifest"
	"github.com/chazu/ujvm/pkg/classfile"
)

// storeCommand processes the `ujvm store` subcommand.
// Usage:
//
//	ujvm store import <file>...   # add class files and containers
//	ujvm store list               # list stored classes
//	ujvm store batches            # list imports
//	ujvm store rm <class>...      # remove classes
//	ujvm store bundle <class> <out.ujcc>  # pack a class and its dependencies
func storeCommand(m *manifest.Manifest, args []string) error {
	path := m.StorePath()
	if path == "" {
		return fmt.Errorf("no class store: set [classpath] store in %s", manifest.FileName)
	}
	if len(args) == 0 {
		return errors.New("store: expected import, list, batches, rm or bundle")
	}
	s, err := classdb.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return runStore(s, os.Stdout, args[0], args[1:])
}

func runStore(s *classdb.Store, out io.Writer, sub string, args []string) error {
	switch sub {
	case "import":
		ids, err := s.ImportFiles(args)
		for i, id := range ids {
			fmt.Fprintf(out, "%s  %s\n", id, args[i])
		}
		return err
	case "list":
		entries, err := s.List()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CLASS\tSUPER\tFORMAT\tSIZE\tHASH")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.Name, e.Super, e.Format, e.Size, hex.EncodeToString(e.Hash[:6]))
		}
		return w.Flush()
	case "batches":
		batches, err := s.Batches()
		if err != nil {
			return err
		}
		for _, b := range batches {
			fmt.Fprintf(out, "%s  %s  %3d  %s\n", b.ID, b.Created.Format("2006-01-02 15:04:05"), b.Classes, b.Source)
		}
		return nil
	case "bundle":
		if len(args) != 2 {
			return errors.New("store bundle: expected <class> <out.ujcc>")
		}
		chunks, err := s.Bundle(manifest.InternalName(args[0]))
		if err != nil {
			return err
		}
		images := make([][]byte, len(chunks))
		for i, c := range chunks {
			images[i] = c.Content
		}
		data, err := classfile.Pack(images)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[1], data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d classes -> %s\n", len(chunks), args[1])
		return nil
	case "rm":
		for _, name := range args {
			if err := s.Delete(name); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("store: unknown subcommand %q", sub)
}
