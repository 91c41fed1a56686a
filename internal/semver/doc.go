// Package semver parses, orders, and increments prefixed release tags such as
// "version-1.2.3" used to mark releases in source repositories.
package semver
