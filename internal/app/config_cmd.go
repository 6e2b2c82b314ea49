package app

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nuetzliches/busgate/internal/config"
)

func configCmd(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "missing subcommand: fmt | check")
		return 2
	}

	switch args[0] {
	case "fmt":
		return configFormat(args[1:], os.Stdout, os.Stderr)
	case "check", "validate":
		return configCheck(args[1:], os.Stdout, os.Stderr)
	default:
		fmt.Fprintf(os.Stderr, "unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func configFormat(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("config fmt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./Busgatefile", "path to config file")
	write := fs.Bool("write", false, "rewrite the file in place")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	out := config.Format(cfg)
	if *write {
		if err := os.WriteFile(*configPath, out, 0o644); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		return 0
	}
	_, _ = stdout.Write(out)
	return 0
}

func configCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./Busgatefile", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	_, res := cfg.ValidateWithResult()
	for _, w := range res.Warnings {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	if !res.OK() {
		for _, e := range res.Errors {
			fmt.Fprintf(stderr, "error: %s\n", e)
		}
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}
