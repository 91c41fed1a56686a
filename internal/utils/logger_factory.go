package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level %q, expected one of %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format %q, expected one of %s"
	logDirectoryErrorTemplateConstant    = "unable to create log directory %s: %w"
	choiceListSeparatorConstant          = ", "
	standardErrorSinkConstant            = "stderr"
	logDirectoryPermissionsConstant      = 0o755
	timestampFieldConstant               = "ts"
)

// LogLevel names a logging threshold.
type LogLevel string

// LogFormat names a log encoding.
type LogFormat string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	// LogFormatStructured emits one JSON object per entry.
	LogFormatStructured LogFormat = "structured"
	// LogFormatConsole emits tab separated human readable entries.
	LogFormatConsole LogFormat = "console"
)

var (
	zapLevels = map[LogLevel]zapcore.Level{
		LogLevelDebug: zapcore.DebugLevel,
		LogLevelInfo:  zapcore.InfoLevel,
		LogLevelWarn:  zapcore.WarnLevel,
		LogLevelError: zapcore.ErrorLevel,
	}
	zapEncodings = map[LogFormat]string{
		LogFormatStructured: "json",
		LogFormatConsole:    "console",
	}
)

// LogLevels lists the accepted log levels from most to least verbose.
func LogLevels() []LogLevel {
	return []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}
}

// LogFormats lists the accepted log formats.
func LogFormats() []LogFormat {
	return []LogFormat{LogFormatStructured, LogFormatConsole}
}

// LoggerFactory builds the process logger.
type LoggerFactory struct {
	makeDirectory func(path string, permissions os.FileMode) error
}

// NewLoggerFactory constructs a logger factory.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{makeDirectory: os.MkdirAll}
}

// CreateLogger builds a logger writing to stderr and to every non-blank path in logFilePaths.
// Level and format names are matched case-insensitively. Parent directories of log files are
// created on demand so a run can log into its fresh output directory.
func (factory *LoggerFactory) CreateLogger(requestedLogLevel LogLevel, requestedLogFormat LogFormat, logFilePaths ...string) (*zap.Logger, error) {
	zapLevel, knownLevel := zapLevels[LogLevel(strings.ToLower(strings.TrimSpace(string(requestedLogLevel))))]
	if !knownLevel {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, requestedLogLevel, joinChoices(LogLevels()))
	}
	encoding, knownFormat := zapEncodings[LogFormat(strings.ToLower(strings.TrimSpace(string(requestedLogFormat))))]
	if !knownFormat {
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, requestedLogFormat, joinChoices(LogFormats()))
	}

	configuration := zap.NewProductionConfig()
	configuration.Level = zap.NewAtomicLevelAt(zapLevel)
	configuration.Encoding = encoding
	configuration.EncoderConfig.TimeKey = timestampFieldConstant
	configuration.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	configuration.OutputPaths = []string{standardErrorSinkConstant}
	configuration.ErrorOutputPaths = []string{standardErrorSinkConstant}

	for _, logFilePath := range logFilePaths {
		trimmedPath := strings.TrimSpace(logFilePath)
		if len(trimmedPath) == 0 {
			continue
		}
		if directory := filepath.Dir(trimmedPath); factory != nil && factory.makeDirectory != nil {
			if directoryError := factory.makeDirectory(directory, logDirectoryPermissionsConstant); directoryError != nil {
				return nil, fmt.Errorf(logDirectoryErrorTemplateConstant, directory, directoryError)
			}
		}
		configuration.OutputPaths = append(configuration.OutputPaths, trimmedPath)
	}

	return configuration.Build()
}

func joinChoices[Choice ~string](choices []Choice) string {
	names := make([]string, len(choices))
	for index, choice := range choices {
		names[index] = string(choice)
	}
	return strings.Join(names, choiceListSeparatorConstant)
}
