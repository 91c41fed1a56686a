package gitrepo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spinnaker/buildtool/internal/gitrepo"
)

func TestParseRemoteURL(testInstance *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected gitrepo.RemoteURL
	}{
		{
			name:     "https_with_git_suffix",
			input:    "https://github.com/spinnaker/orca.git",
			expected: gitrepo.RemoteURL{Protocol: gitrepo.RemoteProtocolHTTPS, Host: "github.com", Owner: "spinnaker", Repository: "orca"},
		},
		{
			name:     "ssh_scp_form",
			input:    "git@github.com:spinnaker/deck.git",
			expected: gitrepo.RemoteURL{Protocol: gitrepo.RemoteProtocolSSH, Host: "github.com", Owner: "spinnaker", Repository: "deck"},
		},
		{
			name:     "nested_repository_path",
			input:    "ssh://gitlab.example.com/team/group/project",
			expected: gitrepo.RemoteURL{Protocol: gitrepo.RemoteProtocolSSH, Host: "gitlab.example.com", Owner: "team", Repository: "group/project"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			parsed, parseError := gitrepo.ParseRemoteURL(testCase.input)
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expected, parsed)
		})
	}

	_, parseError := gitrepo.ParseRemoteURL("/tmp/local/orca")
	require.ErrorAs(testInstance, parseError, &gitrepo.RemoteURLParseError{})
}

func TestIsSameRepositoryIgnoresProtocolAndSuffix(testInstance *testing.T) {
	require.True(testInstance, gitrepo.IsSameRepository("https://github.com/spinnaker/gate", "git@github.com:spinnaker/gate.git"))
	require.False(testInstance, gitrepo.IsSameRepository("https://github.com/spinnaker/gate", "https://github.com/myfork/gate"))
	require.True(testInstance, gitrepo.IsSameRepository("/tmp/source/gate", "/tmp/source/../source/gate"))
}

func TestGitPrefix(testInstance *testing.T) {
	require.Equal(testInstance, "https://github.com/spinnaker", gitrepo.GitPrefix("https://github.com/spinnaker/clouddriver"))
	require.Equal(testInstance, "https://github.com/spinnaker", gitrepo.GitPrefix("git@github.com:spinnaker/clouddriver.git"))
}

func TestFormatRemoteURL(testInstance *testing.T) {
	remote := gitrepo.RemoteURL{Protocol: gitrepo.RemoteProtocolSSH, Host: "github.com", Owner: "spinnaker", Repository: "kayenta"}
	formatted, formatError := gitrepo.FormatRemoteURL(remote)
	require.NoError(testInstance, formatError)
	require.Equal(testInstance, "git@github.com:spinnaker/kayenta.git", formatted)

	remote.Protocol = gitrepo.RemoteProtocolHTTPS
	formatted, formatError = gitrepo.FormatRemoteURL(remote)
	require.NoError(testInstance, formatError)
	require.Equal(testInstance, "https://github.com/spinnaker/kayenta", formatted)

	_, unsupportedError := gitrepo.FormatRemoteURL(gitrepo.RemoteURL{Protocol: "ftp", Host: "h", Owner: "o", Repository: "r"})
	require.ErrorAs(testInstance, unsupportedError, &gitrepo.UnsupportedProtocolError{})
}
