// Package gitrepo parses and rewrites git remote URLs so repositories can be
// compared across ssh and https forms and grouped by their shared prefix.
package gitrepo
