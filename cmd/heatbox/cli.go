package main

import (
	"fmt"
	"io"

	"github.com/heatbox/extension/internal/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// options are the command line switches. Everything else comes from the
// config file.
type options struct {
	ConfigDir string
	Stdin     bool
	AutoStart bool
	Once      bool
	Version   bool
}

// parseFlags reads args and binds the overriding flags into viper.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("heatbox", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.ConfigDir, "config", "c", ".", "directory containing "+config.FileName)
	fs.BoolVar(&opts.Stdin, "stdin", false, "serve the host bridge on stdin/stdout")
	fs.BoolVar(&opts.AutoStart, "start", false, "register the scene and start the simulation immediately")
	fs.BoolVar(&opts.Once, "once", false, "exit when the first session ends")
	fs.BoolVarP(&opts.Version, "version", "v", false, "print the version and exit")

	fs.String("scenario", "", "scenario file (overrides scenario.path)")
	fs.String("log-level", "", "log level (overrides logLevel)")
	fs.String("storage", "", "storage backend (overrides storage.type)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	bind := map[string]string{
		"scenario":  "scenario.path",
		"log-level": "logLevel",
		"storage":   "storage.type",
	}
	for flag, key := range bind {
		if f := fs.Lookup(flag); f != nil && f.Changed {
			if err := viper.BindPFlag(key, f); err != nil {
				return opts, fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}
	return opts, nil
}
