package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogrusLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: "json", Output: &buf})

	log.WithField("account", "123456789012").WithFields(map[string]interface{}{
		"namespace": "resource-tags",
	}).Info("cache hit")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "cache hit" {
		t.Errorf("Expected msg 'cache hit', got %v", entry["msg"])
	}
	if entry["account"] != "123456789012" {
		t.Errorf("Expected account field, got %v", entry["account"])
	}
	if entry["namespace"] != "resource-tags" {
		t.Errorf("Expected namespace field, got %v", entry["namespace"])
	}
}

func TestLogrusLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Format: "text", Output: &buf})

	log.Error("fetch failed", errors.New("boom"))

	output := buf.String()
	if !strings.Contains(output, "fetch failed") || !strings.Contains(output, "error=boom") {
		t.Errorf("Expected error log with error field, got: %s", output)
	}
}

func TestLogrusLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Output: &buf})

	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("visible warning")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("Expected debug/info to be filtered, got: %s", output)
	}
	if !strings.Contains(output, "visible warning") {
		t.Errorf("Expected warning in output, got: %s", output)
	}
}

func TestLogrusLogger_FieldsDoNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf})
	_ = base.WithField("account", "a")

	base.Info("plain")
	if strings.Contains(buf.String(), "account=") {
		t.Errorf("WithField must not mutate the parent logger, got: %s", buf.String())
	}
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Error("ignored", errors.New("x"))
	log.WithField("k", "v").Warn("ignored")
}
