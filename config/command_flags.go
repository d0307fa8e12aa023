// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	defaultConfigFilePath  = "./config.yaml"
	fallbackConfigFilePath = "./config.yml"
	configFileEnvVar       = "TAGBRIDGE_CONFIGFILE"
)

// CommandLine holds the parsed command-line arguments.
type CommandLine struct {
	// ConfigFilePath is the value of -config.
	ConfigFilePath string

	// ConfigFileSet reports whether -config was given explicitly.
	ConfigFileSet bool

	// Tags are the tags given with -tags, in order.
	Tags []string

	// PagePath is the HTML file given with -page.
	PagePath string

	// OutPath is where the annotated page is written; empty means stdout.
	OutPath string

	// Watch keeps annotating PagePath into OutPath until interrupted.
	Watch bool
}

var errWatchNeedsFiles = errors.New("-watch needs both -page and -out")

// ParseCommandLine parses args (without the program name).
func ParseCommandLine(args []string, output io.Writer) (CommandLine, error) {
	var (
		cmd  CommandLine
		tags string
	)

	flags := flag.NewFlagSet("tagbridge", flag.ContinueOnError)
	flags.SetOutput(output)

	flags.StringVar(&cmd.ConfigFilePath, "config", defaultConfigFilePath, "Path to a tagbridge configuration file in YAML format.")
	flags.StringVar(&tags, "tags", "", "Comma-separated tags to translate; prints the result as YAML and exits.")
	flags.StringVar(&cmd.PagePath, "page", "", "HTML file to annotate once; writes the result and exits.")
	flags.StringVar(&cmd.OutPath, "out", "", "Where to write the annotated page (default: stdout).")
	flags.BoolVar(&cmd.Watch, "watch", false, "With -page and -out: keep the page annotated as the file changes, until interrupted.")

	if err := flags.Parse(args); err != nil {
		return CommandLine{}, fmt.Errorf("failed to parse command line: %w", err)
	}

	if cmd.Watch && (cmd.PagePath == "" || cmd.OutPath == "") {
		return CommandLine{}, errWatchNeedsFiles
	}

	flags.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			cmd.ConfigFileSet = true
		}
	})

	for tag := range strings.SplitSeq(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			cmd.Tags = append(cmd.Tags, tag)
		}
	}

	return cmd, nil
}

// configFilePath picks the config file:
//  1. Command-line flag (-config)
//  2. Environment variable (TAGBRIDGE_CONFIGFILE)
//  3. ./config.yaml, falling back to ./config.yml
func (cmd CommandLine) configFilePath() string {
	if cmd.ConfigFileSet {
		return cmd.ConfigFilePath
	}

	if envVar := os.Getenv(configFileEnvVar); envVar != "" {
		return envVar
	}

	if !fileExists(defaultConfigFilePath) && fileExists(fallbackConfigFilePath) {
		return fallbackConfigFilePath
	}

	return defaultConfigFilePath
}
