package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("loud").GetLevel())
}

func TestLogErrorWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("info", &buf)

	LogError(logger, "service", "CommitSale", "stock write failed", map[string]string{"sale": "SALE-1"}, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["msg"])
	assert.Equal(t, "service", entry["module"])
	assert.Equal(t, "CommitSale", entry["op"])
	assert.Equal(t, "error", entry["level"])
}
