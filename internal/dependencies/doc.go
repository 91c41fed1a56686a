// Package dependencies resolves the collaborators release commands run with:
// the subprocess executor, git runner, metrics registry, HTTP client, and clock.
package dependencies
