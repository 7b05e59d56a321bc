// SPDX-License-Identifier: EPL-2.0

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := newLogger(&buf, "debug", "json")
	l.WithField("node", "mic").Debug("configured")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["node"] != "mic" || entry["msg"] != "configured" || entry["level"] != "debug" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	t.Parallel()

	l := newLogger(&bytes.Buffer{}, "loud", "text")
	if l.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", l.GetLevel())
	}
}
