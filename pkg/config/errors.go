package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrNilPointer is returned when a nil pointer is provided to a loader.
	ErrNilPointer = errors.New("nil pointer provided to config loader")

	// ErrReadingFile is returned when a configuration file cannot be opened.
	ErrReadingFile = errors.New("failed to read configuration file")

	// ErrParsingFile is returned when a configuration file is not valid YAML
	// for the target type.
	ErrParsingFile = errors.New("failed to parse configuration file")
)
