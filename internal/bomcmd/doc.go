// Package bomcmd implements the build_bom and publish_bom commands.
//
// build_bom refreshes every BOM repository on a branch, summarizes each one, and
// merges the results into a new bill of materials. publish_bom uploads a built
// BOM to the bucket releases are resolved from.
package bomcmd
