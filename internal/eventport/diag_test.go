package eventport

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/protocol"
	"github.com/danmuck/eventport/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func captureLog(rt *Runtime) *bytes.Buffer {
	var buf bytes.Buffer
	rt.log = zerolog.New(&buf).Level(zerolog.DebugLevel)
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["message"] == msg {
			out = append(out, entry)
		}
	}
	return out
}

func TestDebugLogsCarryPayloadDiagnostics(t *testing.T) {
	testlog.Start(t)

	g, main, rt := newFixture(t)
	buf := captureLog(rt)

	x, _ := port.NewChannel(main)
	marked := protocol.Wrap(nil, "app")
	rt.BeforeSend(marked, []any{x})

	lines := logLines(t, buf, "marked payload rewrapped")
	if len(lines) != 1 {
		t.Fatalf("expected one rewrap line, got=%s", buf.String())
	}
	payload, _ := lines[0]["payload"].(string)
	if !strings.Contains(payload, protocol.MarkerKey) || !strings.Contains(payload, `"app"`) {
		t.Fatalf("expected diagnostic notation of the wrapper, got=%q", payload)
	}

	target := newOriginTarget()
	m := rt.CreateMirror(target)
	m.AddEventListener("ping", event.Func(func(*event.Event) {}))
	g.Settle()
	target.DispatchEvent(event.New("ping", map[string]any{"seq": 7}))
	g.Settle()

	lines = logLines(t, buf, "event relayed")
	if len(lines) != 1 {
		t.Fatalf("expected one relay line, got=%s", buf.String())
	}
	snapshot, _ := lines[0]["snapshot"].(string)
	if !strings.Contains(snapshot, `"seq": 7`) || lines[0]["type"] != "ping" {
		t.Fatalf("expected snapshot diagnostics, got=%v", lines[0])
	}
	testlog.Logf("eventport/diag: payload=%s snapshot=%s", payload, snapshot)
}

func TestDiagReportsUnencodableValues(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Debug().Func(diag("payload", map[string]any{"fn": func() {}})).Msg("x")
	if !strings.Contains(buf.String(), "payload_error") {
		t.Fatalf("expected encode failure recorded, got=%s", buf.String())
	}
}
