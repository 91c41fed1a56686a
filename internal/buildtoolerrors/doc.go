// Package buildtoolerrors defines the classified error type shared by every
// release command and the helpers that log such errors exactly once.
package buildtoolerrors
