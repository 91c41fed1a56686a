// Package gitrunner performs the git operations a release run needs against
// local clones: cloning at a branch or commit, tagging and pushing, and
// locating the newest release tag so the commits since it can be summarized.
//
// Mutating operations shell out through execshell; read-only inspection of a
// clone's HEAD and remotes goes through go-git.
package gitrunner
