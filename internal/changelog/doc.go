// Package changelog renders release changelogs from repository summaries and
// publishes them to the gist and documentation site they are curated in.
package changelog
