package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/horomatch/internal/config"
)

const redacted = "********"

func runConfig(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: horomatch config [init [path]|show|env]")
		os.Exit(1)
	}
	switch args[0] {
	case "init":
		exitOnError(configInit(args[1:], os.Stdout))
	case "show":
		exitOnError(configShow(args[1:], os.Stdout))
	case "env":
		configEnv(os.Stdout)
	default:
		fmt.Printf("Unknown config command: %s\n", args[0])
		os.Exit(1)
	}
}

// configInit writes the built-in defaults to a new config file.
func configInit(args []string, w io.Writer) error {
	fs := newFlagSet("config init")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(argsReorder(args))

	path := defaultConfigPath
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	cfg, err := config.Default()
	if err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}

// configShow prints the effective config as YAML with tokens masked.
func configShow(args []string, w io.Writer) error {
	fs := newFlagSet("config show")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(argsReorder(args))

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Relay.AuthToken != "" {
		cfg.Relay.AuthToken = redacted
	}
	if cfg.Client.AuthToken != "" {
		cfg.Client.AuthToken = redacted
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if resolved == "" {
		resolved = "built-in defaults"
	}
	fmt.Fprintf(w, "# %s\n", resolved)
	_, err = w.Write(data)
	return err
}

func configEnv(w io.Writer) {
	for _, key := range config.EnvKeys() {
		fmt.Fprintf(w, "%-44s %s\n", config.EnvName(key), key)
	}
}
