package utils_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spinnaker/buildtool/internal/utils"
)

func readLogEntries(testInstance *testing.T, path string) []map[string]any {
	testInstance.Helper()
	file, openError := os.Open(path)
	require.NoError(testInstance, openError)
	defer file.Close()

	entries := []map[string]any{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entry := map[string]any{}
		require.NoError(testInstance, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(testInstance, scanner.Err())
	return entries
}

func TestLoggerFactoryCreateLogger(testInstance *testing.T) {
	testCases := []struct {
		name        string
		level       utils.LogLevel
		format      utils.LogFormat
		expectError string
	}{
		{name: "DebugStructured", level: utils.LogLevelDebug, format: utils.LogFormatStructured},
		{name: "ErrorConsole", level: utils.LogLevelError, format: utils.LogFormatConsole},
		{name: "MixedCase", level: "WARN", format: " Console "},
		{name: "UnknownLevel", level: "verbose", format: utils.LogFormatStructured, expectError: "debug, info, warn, error"},
		{name: "UnknownFormat", level: utils.LogLevelInfo, format: "xml", expectError: "structured, console"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			logger, createError := utils.NewLoggerFactory().CreateLogger(testCase.level, testCase.format)
			if len(testCase.expectError) > 0 {
				require.ErrorContains(testInstance, createError, testCase.expectError)
				require.Nil(testInstance, logger)
				return
			}
			require.NoError(testInstance, createError)
			require.NotNil(testInstance, logger)
		})
	}
}

func TestLoggerFactoryWritesFilteredEntriesToLogFile(testInstance *testing.T) {
	logFilePath := filepath.Join(testInstance.TempDir(), "output", "logs", "build_bom.log")

	logger, createError := utils.NewLoggerFactory().CreateLogger(utils.LogLevelInfo, utils.LogFormatStructured, "", logFilePath)
	require.NoError(testInstance, createError)

	logger.Debug("cloning repository")
	logger.Info("wrote bom")
	_ = logger.Sync()

	entries := readLogEntries(testInstance, logFilePath)
	require.Len(testInstance, entries, 1)
	require.Equal(testInstance, "wrote bom", entries[0]["msg"])
	require.Equal(testInstance, "info", entries[0]["level"])
	timestamp, isString := entries[0]["ts"].(string)
	require.True(testInstance, isString)
	require.True(testInstance, strings.Contains(timestamp, "T"))
}
