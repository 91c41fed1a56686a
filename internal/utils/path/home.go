// Package pathutils resolves user supplied filesystem paths.
package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const homeShortcutConstant = "~"

// HomeDirectoryProvider resolves the current user's home directory.
type HomeDirectoryProvider func() (string, error)

// HomeExpander replaces a leading "~" with the home directory, resolved once.
type HomeExpander struct {
	provider HomeDirectoryProvider
	once     sync.Once
	home     string
}

// NewHomeExpander builds a HomeExpander. A nil provider uses os.UserHomeDir.
func NewHomeExpander(provider HomeDirectoryProvider) *HomeExpander {
	if provider == nil {
		provider = os.UserHomeDir
	}
	return &HomeExpander{provider: provider}
}

// Expand returns candidatePath with "~" or "~/" resolved. Other paths, and every path
// when the home directory is unknown, are returned unchanged.
func (expander *HomeExpander) Expand(candidatePath string) string {
	if expander == nil || !strings.HasPrefix(candidatePath, homeShortcutConstant) {
		return candidatePath
	}
	remainder := strings.TrimPrefix(candidatePath, homeShortcutConstant)
	if len(remainder) > 0 && remainder[0] != '/' && remainder[0] != os.PathSeparator {
		return candidatePath
	}

	expander.once.Do(func() {
		if home, homeError := expander.provider(); homeError == nil {
			expander.home = home
		}
	})
	if len(expander.home) == 0 {
		return candidatePath
	}
	return filepath.Join(expander.home, remainder)
}
