package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/ujvm/pkg/classfile"
)

func isContainer(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ujcc")
}

// readImages returns the class images in a class file or container.
func readImages(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isContainer(path) {
		return classfile.Unpack(data)
	}
	return [][]byte{data}, nil
}

// disasmCommand processes `ujvm disasm <file>...`.
func disasmCommand(out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("disasm: no files given")
	}
	for _, p := range args {
		images, err := readImages(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		for i, img := range images {
			in, err := classfile.Inspect(img)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", p, i, err)
			}
			fmt.Fprintf(out, "; %s [%d] %d bytes\n", p, i, len(img))
			fmt.Fprint(out, in.Disassemble())
			fmt.Fprintln(out)
		}
	}
	return nil
}

// packCommand processes `ujvm pack -o out.ujcc <file>...`. Containers given
// as inputs are flattened into the output.
func packCommand(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	output := fs.String("o", "classes.ujcc", "Output container")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("pack: no files given")
	}
	data, n, err := packFiles(fs.Args())
	if err != nil {
		return err
	}
	if err := os.WriteFile(*output, data, 0644); err != nil {
		return err
	}
	log.Infof("packed %d classes into %s", n, *output)
	return nil
}

func packFiles(paths []string) ([]byte, int, error) {
	var all [][]byte
	for _, p := range paths {
		images, err := readImages(p)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", p, err)
		}
		for i, img := range images {
			if _, err := classfile.Probe(img); err != nil {
				return nil, 0, fmt.Errorf("%s[%d]: %w", p, i, err)
			}
		}
		all = append(all, images...)
	}
	data, err := classfile.Pack(all)
	return data, len(all), err
}
