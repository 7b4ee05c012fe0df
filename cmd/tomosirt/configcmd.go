package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"tomosirt/pkg/config"
)

func runConfig(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] != "init" {
		return fmt.Errorf("usage: tomosirt config init [--out file] [--force]")
	}

	fs := newFlagSet("config init", stderr)
	out := fs.StringP("out", "o", "tomosirt.yaml", "configuration file to create")
	force := fs.BoolP("force", "f", false, "overwrite an existing file")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", *out)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := config.CreateDefaultConfigFile(*out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Default configuration saved to: %s\n", *out)
	return nil
}
