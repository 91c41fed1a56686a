// Package scm decides where each source repository of a release lives and
// keeps the local clones consistent with that decision.
//
// BranchManager clones a branch of every repository from a GitHub owner.
// BomManager clones the exact commits a bill of materials pins. Both share
// Manager, which caches repository specs, records source info, and maps work
// over repositories concurrently.
package scm
