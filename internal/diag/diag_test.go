package diag

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLineLogsAtInfo(t *testing.T) {
	log := New(nil)
	var buf bytes.Buffer
	log.Out = &buf

	Line(log)("Fetched: http://example.com/x.ts")

	out := buf.String()
	if !strings.Contains(out, "Fetched: http://example.com/x.ts") {
		t.Errorf("output = %q", out)
	}
}

func TestNewDisablesColorForNonTTY(t *testing.T) {
	log := New(nil)
	tf, ok := log.Formatter.(*logrus.TextFormatter)
	if !ok {
		t.Fatalf("formatter type = %T", log.Formatter)
	}
	if tf.ForceColors || !tf.DisableColors {
		t.Errorf("non-TTY output configured with colors: force=%v disable=%v", tf.ForceColors, tf.DisableColors)
	}
}
