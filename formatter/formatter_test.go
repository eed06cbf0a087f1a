package formatter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextFormatter_Format(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "Unknown proxy type",
		Data: logrus.Fields{
			"peer":   7,
			"source": "client/internal/peer/peer.go:42",
		},
	}

	out, err := NewTextFormatter().Format(entry)
	require.NoError(t, err)

	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2024-05-01T10:00:00Z WARN "), line)
	assert.Contains(t, line, "[peer: 7] ")
	assert.Contains(t, line, "client/internal/peer/peer.go:42: Unknown proxy type\n")
}

func TestTextFormatter_SortsFields(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "Connected endpoint",
		Data: logrus.Fields{
			"port":     51820,
			"peer":     3,
			"endpoint": "198.51.100.20:51820",
		},
	}

	out, err := NewTextFormatter().Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T10:00:00Z INFO [endpoint: 198.51.100.20:51820, peer: 3, port: 51820] Connected endpoint\n", string(out))
}

func TestSetFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	require.NoError(t, SetFormatter(logger, FormatJSON))
	logger.WithField("peer", 1).Info("Disconnecting from endpoint")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Disconnecting from endpoint", line["msg"])
	assert.Equal(t, float64(1), line["peer"])
	assert.Contains(t, line["source"], "formatter/formatter_test.go:")
	assert.NotContains(t, line, "func")

	buf.Reset()
	require.NoError(t, SetFormatter(logger, FormatText))
	logger.Info("plain")
	assert.Contains(t, buf.String(), " INFO formatter/formatter_test.go:")
	assert.Len(t, logger.Hooks[logrus.InfoLevel], 1)

	assert.Error(t, SetFormatter(logger, "xml"))
}
