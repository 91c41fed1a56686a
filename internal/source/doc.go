// Package source implements the commands that fetch, inspect, tag, and branch the
// source repositories of a release, and the command that tags its container images.
package source
