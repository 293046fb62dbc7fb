package progress

import (
	"strings"
	"testing"
)

func TestTrackerSnapshot(t *testing.T) {
	t.Parallel()

	tr := NewTracker(4, 1000)
	tr.AddRows(50)
	tr.AddBytesRead(250)
	tr.AddBytesOut(100)
	tr.AddDecodeErrors(2)
	tr.FileDone()

	ev := tr.Snapshot()
	if ev.RowsWritten != 50 || ev.BytesRead != 250 || ev.BytesWritten != 100 {
		t.Fatalf("snapshot = %+v", ev)
	}
	if ev.FilesDone != 1 || ev.FilesTotal != 4 {
		t.Fatalf("files = %d/%d; want 1/4", ev.FilesDone, ev.FilesTotal)
	}
	if ev.DecodeErrors != 2 {
		t.Fatalf("decode errors = %d; want 2", ev.DecodeErrors)
	}

	s := ev.String()
	if !strings.Contains(s, "files 1/4") || !strings.Contains(s, "rows 50") {
		t.Fatalf("rendered event = %q", s)
	}
	if !strings.Contains(s, "decode-errors 2") {
		t.Fatalf("rendered event %q must surface decode errors", s)
	}
}

func TestHumanBytes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n    int64
		want string
	}{
		{512, "512B"},
		{2048, "2.0KiB"},
		{3 << 20, "3.0MiB"},
	}
	for _, tc := range cases {
		if got := humanBytes(tc.n); got != tc.want {
			t.Fatalf("humanBytes(%d) = %q; want %q", tc.n, got, tc.want)
		}
	}
}
