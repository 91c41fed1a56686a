package gitrepo

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	gitUserPrefixConstant               = "git@"
	pathSeparatorConstant               = "/"
	sshPathDelimiterConstant            = ":"
	gitSuffixConstant                   = ".git"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	requiredValueMessageConstant        = "value required"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	unknownProtocolMessageConstant      = "unsupported remote protocol"
	httpsURLTemplateConstant            = "https://%s/%s/%s"
	sshURLTemplateConstant              = "git@%s:%s/%s"
)

// RemoteProtocol enumerates git remote protocols.
type RemoteProtocol string

// Well known remote protocols.
const (
	RemoteProtocolSSH   RemoteProtocol = RemoteProtocol("ssh")
	RemoteProtocolHTTPS RemoteProtocol = RemoteProtocol("https")
)

var (
	schemeRemotePattern = regexp.MustCompile(`^([a-z0-9]+)://([^/]+)/([^/]+)/(.+)$`)
	sshRemotePattern    = regexp.MustCompile(`^git@([^:]+):([^/]+)/(.+)$`)
)

// RemoteURL is a hosted repository location split into host, owner, and repository path.
type RemoteURL struct {
	Protocol   RemoteProtocol
	Host       string
	Owner      string
	Repository string
}

// RemoteURLParseError indicates a remote string is not a hosted repository URL.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// UnsupportedProtocolError indicates the provided protocol cannot be formatted.
type UnsupportedProtocolError struct {
	Protocol RemoteProtocol
}

// Error describes the unsupported protocol.
func (protocolError UnsupportedProtocolError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, protocolError.Protocol, unknownProtocolMessageConstant)
}

// ParseRemoteURL recognizes scheme://host/owner/repo and git@host:owner/repo.
// A trailing .git is dropped from the repository path.
func ParseRemoteURL(remote string) (RemoteURL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}
	gitless := strings.TrimSuffix(trimmedRemote, gitSuffixConstant)

	if matches := schemeRemotePattern.FindStringSubmatch(gitless); matches != nil {
		return RemoteURL{Protocol: RemoteProtocol(matches[1]), Host: matches[2], Owner: matches[3], Repository: matches[4]}, nil
	}
	if matches := sshRemotePattern.FindStringSubmatch(gitless); matches != nil {
		return RemoteURL{Protocol: RemoteProtocolSSH, Host: matches[1], Owner: matches[2], Repository: matches[3]}, nil
	}
	return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
}

// NormalizeRepositoryURL returns a comparison key for url.
// Hosted URLs normalize to host/owner/repository and anything else is treated as a local path.
func NormalizeRepositoryURL(url string) string {
	parsed, parseError := ParseRemoteURL(url)
	if parseError == nil {
		return strings.Join([]string{parsed.Host, parsed.Owner, parsed.Repository}, pathSeparatorConstant)
	}
	absolutePath, absoluteError := filepath.Abs(url)
	if absoluteError != nil {
		return url
	}
	return absolutePath
}

// IsSameRepository reports whether two URLs refer to the same repository regardless of protocol.
func IsSameRepository(first string, second string) bool {
	return NormalizeRepositoryURL(first) == NormalizeRepositoryURL(second)
}

// MakeHTTPSURL builds https://host/owner/repository.
func MakeHTTPSURL(host string, owner string, repository string) string {
	return fmt.Sprintf(httpsURLTemplateConstant, host, owner, repository)
}

// MakeSSHURL builds git@host:owner/repository.
func MakeSSHURL(host string, owner string, repository string) string {
	return fmt.Sprintf(sshURLTemplateConstant, host, owner, repository)
}

// GitPrefix returns url up to its final path component, rewriting ssh URLs to https first.
func GitPrefix(url string) string {
	if strings.HasPrefix(url, gitUserPrefixConstant) {
		if parsed, parseError := ParseRemoteURL(url); parseError == nil {
			url = MakeHTTPSURL(parsed.Host, parsed.Owner, parsed.Repository)
		}
	}
	lastSeparator := strings.LastIndex(url, pathSeparatorConstant)
	if lastSeparator < 0 {
		return url
	}
	return url[:lastSeparator]
}

// FormatRemoteURL renders a structured remote in its protocol's canonical form.
func FormatRemoteURL(remote RemoteURL) (string, error) {
	if len(strings.TrimSpace(remote.Host)) == 0 {
		return "", RemoteURLParseError{Input: remote.Host, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(remote.Owner)) == 0 {
		return "", RemoteURLParseError{Input: remote.Owner, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(remote.Repository)) == 0 {
		return "", RemoteURLParseError{Input: remote.Repository, Message: requiredValueMessageConstant}
	}

	switch remote.Protocol {
	case RemoteProtocolSSH:
		return MakeSSHURL(remote.Host, remote.Owner, remote.Repository+gitSuffixConstant), nil
	case RemoteProtocolHTTPS:
		return MakeHTTPSURL(remote.Host, remote.Owner, remote.Repository), nil
	default:
		return "", UnsupportedProtocolError{Protocol: remote.Protocol}
	}
}
