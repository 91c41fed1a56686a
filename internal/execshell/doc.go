// Package execshell runs the external tools the release process depends on
// (git, gsutil, gcloud, regctl) through a CommandRunner abstraction.
//
// ShellExecutor logs each invocation, reports non-zero exits as
// CommandFailedError, and lets tests substitute a recording runner.
package execshell
