// Package env captures details about the oregan environment. Inspect the
// environment using the -root_path flag, or its OREGANROOT default.
package env

import "os"

// OreganRoot is the default root directory under which concretized files are
// resolved when -root_path is not given on the command line.
var OreganRoot = findOreganRoot()

func findOreganRoot() string {
	if env := os.Getenv("OREGANROOT"); env != "" {
		return env
	}
	return os.ExpandEnv("$HOME/oregan") // default
}
