package wa

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l := NewLogger(base, "client").Sub("socket")
	l.Warnf("frame %d dropped", 7)

	out := buf.String()
	assert.Contains(t, out, "frame 7 dropped")
	assert.Contains(t, out, "module=client")
	assert.Contains(t, out, "submodule=socket")
	assert.Contains(t, out, "level=WARN")
}
