// Package repository holds the value types describing a source repository
// during a release run: where it lives, which commit it resolved to, and the
// commit messages that separate it from its previous release tag.
package repository
