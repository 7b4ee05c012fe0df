// Command tomosirt simulates parallel-beam sinograms and reconstructs
// volumes from them with SIRT.
//
// Usage:
//
//	tomosirt simulate --phantom shepp --size 128 --slices 4 --angles 180 --out data/scan
//	tomosirt recon --in data/scan --out data/recon --iterations 20 --reference data/scan-phantom
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

const usage = `tomosirt - SIRT reconstruction for parallel-beam tomography

Commands:
  simulate   project a phantom into a sinogram
  recon      reconstruct a volume from a sinogram
  config     write a default configuration file (config init)

Run "tomosirt <command> --help" for the flags of a command.
`

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "simulate":
		err = runSimulate(args[1:], stdout, stderr)
	case "recon", "reconstruct":
		err = runRecon(args[1:], stdout, stderr)
	case "config":
		err = runConfig(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	return fs
}
