package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_KeyValuePairs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core)).Named("router")

	l.Info("job submitted", "jobId", "abc", "programId", "fibonacci")
	l.Debug("probe", "workerId", "w1")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "job submitted", entries[0].Message)
		assert.Equal(t, "router", entries[0].LoggerName)
		assert.Equal(t, "abc", entries[0].ContextMap()["jobId"])
		assert.Equal(t, "w1", entries[1].ContextMap()["workerId"])
	}
}

func TestNewZapLoggerWithLevel_UnknownLevelFallsBack(t *testing.T) {
	l := NewZapLoggerWithLevel("loud")
	assert.NotNil(t, l)
	l.Info("still works")
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Error("discarded", "error", "x")
}
