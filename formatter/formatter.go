package formatter

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// sourceKey is the entry field the ContextHook stores the caller in
const sourceKey = "source"

// TextFormatter formats logs into text with included source code's path
type TextFormatter struct {
	timestampFormat string
	levelDesc       []string
}

// NewTextFormatter create new TextFormatter instance
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		levelDesc:       []string{"PANC", "FATL", "ERRO", "WARN", "INFO", "DEBG", "TRAC"},
		timestampFormat: time.RFC3339,
	}
}

// Format renders a single log entry. Fields are sorted by key so lines of the same peer line up.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == sourceKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(entry.Time.Format(f.timestampFormat))
	b.WriteByte(' ')
	b.WriteString(f.parseLevel(entry.Level))
	b.WriteByte(' ')

	if len(keys) > 0 {
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s: %v", k, entry.Data[k]))
		}
		b.WriteString("[" + strings.Join(fields, ", ") + "] ")
	}

	if src, ok := entry.Data[sourceKey]; ok {
		fmt.Fprintf(&b, "%v: ", src)
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')

	return []byte(b.String()), nil
}

func (f *TextFormatter) parseLevel(level logrus.Level) string {
	if int(level) >= len(f.levelDesc) {
		return ""
	}

	return f.levelDesc[level]
}

// NewJSONFormatter returns a logrus JSON formatter that leaves the caller to the ContextHook
func NewJSONFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		CallerPrettyfier: func(*runtime.Frame) (string, string) {
			return "", ""
		},
	}
}
