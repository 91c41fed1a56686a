// Package utils holds the ambient plumbing shared by every release command: the layered Viper
// configuration loader, the zap logger factory, and the accessor that carries the configuration
// file path and the metrics registry on a command context.
package utils
