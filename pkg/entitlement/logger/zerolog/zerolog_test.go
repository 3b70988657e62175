package zerolog

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

func TestZerologLogger_Info(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Info("test info message", entitlement.Field{Key: "key", Value: "value"})

	if output.Len() == 0 {
		t.Error("Expected info log to be written")
	}
}

func TestZerologLogger_LogLevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	// Debug and Info should be filtered out
	logger.Debug("debug message")
	logger.Info("info message")

	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	logger.Warn("warn message")
	logger.Error("error message")

	if output.Len() == 0 {
		t.Error("Expected warn and error to be logged")
	}
}

func TestZerologLogger_MultipleFields(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Info("test message",
		entitlement.Field{Key: "account_id", Value: "u1"},
		entitlement.Field{Key: "premium", Value: true},
		entitlement.Field{Key: "attempt", Value: 2},
	)

	if output.Len() == 0 {
		t.Error("Expected log with multiple fields to be written")
	}
}
