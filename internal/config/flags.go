package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// ParseFlags handles the command line. Settings come from the environment,
// so the only flag is -h, which prints them. help reports that the caller
// should exit.
func ParseFlags(name string, args []string, out io.Writer) (help bool, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage of %s:\n\nSettings are read from the environment after loading .env:\n\n", name)
		_ = Usage(out)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, err
	}
	if fs.NArg() > 0 {
		return false, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return false, nil
}
