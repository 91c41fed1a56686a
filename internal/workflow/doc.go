// Package workflow runs a release as an ordered sequence of release commands,
// each bound to its own copy of the configuration.
package workflow
