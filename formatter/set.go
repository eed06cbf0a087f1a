package formatter

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// FormatText is the default line format
	FormatText = "text"
	// FormatJSON writes one JSON object per entry
	FormatJSON = "json"
)

// SetTextFormatter set the formatter for given logger.
func SetTextFormatter(logger *logrus.Logger) {
	setFormatter(logger, NewTextFormatter())
}

// SetJSONFormatter set the JSON formatter for given logger.
func SetJSONFormatter(logger *logrus.Logger) {
	setFormatter(logger, NewJSONFormatter())
}

// SetFormatter picks the formatter by name
func SetFormatter(logger *logrus.Logger, format string) error {
	switch format {
	case "", FormatText:
		SetTextFormatter(logger)
	case FormatJSON:
		SetJSONFormatter(logger)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

func setFormatter(logger *logrus.Logger, f logrus.Formatter) {
	logger.Formatter = f
	logger.ReportCaller = true
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.AddHook(NewContextHook())
}
