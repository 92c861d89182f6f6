package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"memory_orchestrator/backend/go/internal/models"

	"github.com/sirupsen/logrus"
)

func TestWithErrorDoesNotMutateReceiver(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(newFormatter())
	base := &Logger{entry: logrus.NewEntry(l)}

	base.WithError(models.NewErrorInfo(models.ErrParse)).Warn("first")
	buf.Reset()
	base.Info("second")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if _, ok := line["error"]; ok {
		t.Errorf("base logger picked up error field: %v", line)
	}
	if line["message"] != "second" {
		t.Errorf("message = %v, want second", line["message"])
	}
}

func TestErrorFieldCarriesKind(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(newFormatter())
	lg := &Logger{entry: logrus.NewEntry(l)}

	err := errors.Join(errors.New("dial tcp"), models.ErrBackendUnavailable)
	lg.WithSession("s1", "u1").WithError(models.NewErrorInfo(err)).Error("read failed")

	var line struct {
		SessionID string           `json:"session_id"`
		Error     models.ErrorInfo `json:"error"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if line.SessionID != "s1" {
		t.Errorf("session_id = %q", line.SessionID)
	}
	if line.Error.Type != "backend_unavailable" {
		t.Errorf("error.type = %q, want backend_unavailable", line.Error.Type)
	}
}

func TestParseLevelFallback(t *testing.T) {
	if got := ParseLevel("debug"); got != logrus.DebugLevel {
		t.Errorf("ParseLevel(debug) = %v", got)
	}
	if got := ParseLevel("nonsense"); got != logrus.InfoLevel {
		t.Errorf("ParseLevel(nonsense) = %v, want info", got)
	}
}
