// Package processor runs a command once, or once per source repository, with
// every invocation timed and every failure reported a single time.
//
// RepositoryProcessor narrows the candidate repositories with allow and deny
// lists, ensures each selected repository is present locally, and fans the
// per-repository work out to a bounded pool of goroutines. Results are keyed by
// repository name and only returned when every repository succeeded.
package processor
