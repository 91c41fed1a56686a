// Package buildconfig defines the options shared by every release command,
// their configuration keys and defaults, and the command line flags that
// override them.
package buildconfig
