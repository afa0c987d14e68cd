package ui

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/testutil"
)

func newRaw(format LogFormat) (*RawPresenter, *bytes.Buffer) {
	var buf bytes.Buffer
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	return NewRawPresenterWithClock(format, &buf, clock), &buf
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestRawPresenter_Text(t *testing.T) {
	p, buf := newRaw(LogFormatText)

	p.Start(RunInfo{Command: "run", Source: "posts.jsonl", Store: "sqlite", Strategy: "two-stage", Workers: 4, Stages: []string{"ingest", "fuse"}})
	p.StageStarted("ingest", 3)
	p.StageAdvanced("ingest")
	p.StageFinished("ingest", "3 documents, 1 flagged", 1500*time.Millisecond)
	p.Paused("rate limit", 30*time.Second)
	p.Warning("intel disabled")

	got := lines(buf)
	testutil.AssertLen(t, got, 6, "one line per event")
	testutil.AssertEqual(t, got[0],
		"2026-03-02T10:00:00Z INFO  run_started command=run source=posts.jsonl store=sqlite strategy=two-stage workers=4 stages=ingest,fuse",
		"start line")
	testutil.AssertEqual(t, got[2], "2026-03-02T10:00:00Z INFO  stage_progress stage=ingest done=1 total=3", "progress")
	testutil.AssertContains(t, got[3], `summary="3 documents, 1 flagged" duration=1.5s`, "quoted summary")
	testutil.AssertContains(t, got[4], "paused reason=\"rate limit\" wait=30s", "pause")
	testutil.AssertContains(t, got[5], "WARN  intel disabled", "warning")
}

func TestRawPresenter_ProgressIsThrottled(t *testing.T) {
	p, buf := newRaw(LogFormatText)

	p.StageStarted("classify", 100)
	for i := 0; i < 100; i++ {
		p.StageAdvanced("classify")
	}
	p.StageAdvanced("unknown")

	// 1 start + 10 progress lines
	testutil.AssertLen(t, lines(buf), 11, "every tenth item")
}

func TestRawPresenter_JSON(t *testing.T) {
	p, buf := newRaw(LogFormatJSON)

	p.Finish(RunSummary{
		Duration:  2 * time.Minute,
		Stages:    []StageLine{{Name: "ingest", Status: StatusSuccess}, {Name: "poll", Status: StatusError}},
		Documents: 12,
		Flagged:   3,
		Malicious: 2,
	})

	var entry struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	testutil.AssertNoError(t, json.Unmarshal(buf.Bytes(), &entry), "valid json")
	testutil.AssertEqual(t, entry.Message, "run_completed", "message")
	testutil.AssertEqual(t, entry.Data["duration"], "2m0s", "duration as string")
	testutil.AssertEqual(t, entry.Data["stages_failed"], 1.0, "failed stages")
	testutil.AssertEqual(t, entry.Data["flagged"], 3.0, "flagged")
}

func TestPTermPresenter_WritesSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPTermPresenter(&buf)

	p.Start(RunInfo{Command: "fuse", Store: "sqlite", Strategy: "precedence", Workers: 1})
	p.StageStarted("fuse", 0)
	p.StageFinished("fuse", "4 flagged", 20*time.Millisecond)
	p.Finish(RunSummary{Duration: time.Second, Stages: []StageLine{{Name: "fuse", Status: StatusSuccess, Duration: 20 * time.Millisecond}}, Flagged: 4})
	testutil.AssertNoError(t, p.Close(), "close")

	out := buf.String()
	testutil.AssertContains(t, out, "PhishFuse - fuse", "header")
	testutil.AssertContains(t, out, "4 flagged", "stage summary")
	testutil.AssertContains(t, out, "Run Completed", "footer")
}

func TestNew_Modes(t *testing.T) {
	var buf bytes.Buffer
	_, ok := New(UIModeQuiet, &buf).(*NoopPresenter)
	testutil.AssertTrue(t, ok, "quiet")
	_, ok = New(UIModeRaw, &buf).(*RawPresenter)
	testutil.AssertTrue(t, ok, "raw")
	_, ok = New(UIModeCompact, &buf).(*PTermPresenter)
	testutil.AssertTrue(t, ok, "compact")
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		250 * time.Millisecond:  "250ms",
		1500 * time.Millisecond: "1.5s",
		125 * time.Second:       "2m5s",
	}
	for d, want := range tests {
		testutil.AssertEqual(t, formatDuration(d), want, d.String())
	}
}

func TestStatusFromError(t *testing.T) {
	testutil.AssertEqual(t, StatusFromError(false, false), StatusSuccess, "ok")
	testutil.AssertEqual(t, StatusFromError(true, true), StatusWarning, "optional failure")
	testutil.AssertEqual(t, StatusFromError(true, false), StatusError, "required failure")
}
