// Package config parses the engine's command-line configuration.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds every flag the engine's CLI accepts.
type Config struct {
	Sites      int
	Variables  int
	Output     string
	Serve      bool
	Stdin      bool
	ScriptPath string
}

// Default returns a configuration with the engine's standard topology:
// 10 sites, 20 variables, logging to stdout, no HTTP exposure.
func Default() *Config {
	return &Config{
		Sites:     10,
		Variables: 20,
		Output:    "",
		Serve:     false,
		Stdin:     false,
	}
}

// Parse parses args (excluding the program name, as in os.Args[1:])
// into a Config, starting from Default. A single positional argument is
// the script path, required unless --stdin is set.
func Parse(args []string) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("repcrec", pflag.ContinueOnError)
	fs.IntVarP(&cfg.Sites, "sites", "n", cfg.Sites, "number of sites")
	fs.IntVarP(&cfg.Variables, "variables", "v", cfg.Variables, "number of variables")
	fs.StringVarP(&cfg.Output, "output", "o", cfg.Output, "output log file (default: stdout)")
	fs.BoolVarP(&cfg.Serve, "serve", "s", cfg.Serve, "expose each site's dump over HTTP")
	fs.BoolVarP(&cfg.Stdin, "stdin", "i", cfg.Stdin, "read instructions from stdin instead of a file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	switch {
	case cfg.Stdin:
		// A script path given alongside --stdin is ignored.
	case len(rest) == 1:
		cfg.ScriptPath = rest[0]
	case len(rest) == 0:
		return nil, fmt.Errorf("config: a script path is required unless --stdin is set")
	default:
		return nil, fmt.Errorf("config: expected exactly one script path, got %d", len(rest))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a legal topology.
func (c *Config) Validate() error {
	if c.Sites <= 0 {
		return fmt.Errorf("config: sites must be positive: %d", c.Sites)
	}
	if c.Variables <= 0 {
		return fmt.Errorf("config: variables must be positive: %d", c.Variables)
	}
	return nil
}

// String returns a formatted summary of the configuration, for the
// startup log line.
func (c *Config) String() string {
	return fmt.Sprintf("sites=%d variables=%d output=%q serve=%t stdin=%t script=%q",
		c.Sites, c.Variables, c.Output, c.Serve, c.Stdin, c.ScriptPath)
}
