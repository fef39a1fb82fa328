package audit

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/busgate/internal/model"
	"github.com/ppiankov/busgate/internal/redact"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newTestLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	return New(append([]Option{WithClock(fixedClock())}, opts...)...)
}

func TestRecordSanitizesArguments(t *testing.T) {
	l := newTestLog(t)
	args := map[string]any{"password": "x", "title": "y"}

	rec := l.Record("notify", args, model.Allowed)
	if rec.Arguments["password"] != redact.Marker {
		t.Errorf("expected password redacted, got %v", rec.Arguments["password"])
	}
	if rec.Arguments["title"] != "y" {
		t.Errorf("expected title kept, got %v", rec.Arguments["title"])
	}
	if args["password"] != "x" {
		t.Error("caller's argument map was modified")
	}
}

func TestRecordExtraRedactKeys(t *testing.T) {
	l := newTestLog(t, WithRedactKeys([]string{"cookie"}))
	rec := l.Record("op", map[string]any{"cookie": "c"}, model.Allowed)
	if rec.Arguments["cookie"] != redact.Marker {
		t.Errorf("expected cookie redacted, got %v", rec.Arguments["cookie"])
	}
}

func TestRecordStampsMetadata(t *testing.T) {
	l := newTestLog(t, WithInstanceID("inst-1"), WithCatalogHash("sha256:abc"))
	rec := l.Append(Entry{
		Operation: "org.freedesktop.Notifications.Notify",
		Verdict:   model.Allowed,
		Reason:    "category notifications allowed",
		Category:  "notifications",
	})

	if rec.Seq != 1 || rec.InstanceID != "inst-1" || rec.CatalogHash != "sha256:abc" {
		t.Errorf("unexpected metadata %+v", rec)
	}
	if rec.Timestamp != "2026-03-01T09:30:00.000Z" {
		t.Errorf("unexpected timestamp %q", rec.Timestamp)
	}
	if rec.PrevHash != GenesisHash {
		t.Errorf("first record must chain to genesis, got %s", rec.PrevHash)
	}
}

func TestQueryMostRecentLast(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 10; i++ {
		l.Record(fmt.Sprintf("op-%d", i), nil, model.Allowed)
	}

	got := l.Query(3)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, want := range []string{"op-7", "op-8", "op-9"} {
		if got[i].Operation != want {
			t.Errorf("Query(3)[%d] = %s, want %s", i, got[i].Operation, want)
		}
	}

	if all := l.Query(0); len(all) != 10 {
		t.Errorf("Query(0) returned %d records, want 10", len(all))
	}
	if all := l.Query(100); len(all) != 10 {
		t.Errorf("Query(100) returned %d records, want 10", len(all))
	}
}

func TestQueryReturnsCopy(t *testing.T) {
	l := newTestLog(t)
	l.Record("op", nil, model.Allowed)
	got := l.Query(1)
	got[0].Operation = "tampered"
	if l.Query(1)[0].Operation != "op" {
		t.Error("Query must not expose internal storage")
	}
}

func TestQueryArgumentsAreDetached(t *testing.T) {
	l := newTestLog(t)
	nested := []any{"org.x", map[string]any{"depth": 1}}
	args := map[string]any{"title": "hello", "args": nested}
	rec := l.Record("dbus.call_method", args, model.Allowed)

	nested[0] = "org.evil"
	nested[1].(map[string]any)["depth"] = 99
	args["title"] = "changed by caller"
	rec.Arguments["title"] = "changed from returned record"

	got := l.Query(1)
	got[0].Arguments["title"] = "tampered"
	got[0].Arguments["args"].([]any)[0] = "tampered"

	stored := l.Query(1)[0]
	if stored.Arguments["title"] != "hello" {
		t.Errorf("stored title = %v, want hello", stored.Arguments["title"])
	}
	if first := stored.Arguments["args"].([]any)[0]; first != "org.x" {
		t.Errorf("stored nested argument = %v, want org.x", first)
	}
	if res := Verify(l.Query(0)); !res.Valid {
		t.Fatalf("chain broken by caller mutation: %s", res.Error)
	}
}

func TestRecordKeepsNumbersExact(t *testing.T) {
	l := newTestLog(t)
	l.Record("op", map[string]any{"n": uint64(1<<63 + 1)}, model.Allowed)
	if got := fmt.Sprint(l.Query(1)[0].Arguments["n"]); got != "9223372036854775809" {
		t.Errorf("n = %s, want 9223372036854775809", got)
	}
}

func TestCapTruncatesToRecentHalf(t *testing.T) {
	l := newTestLog(t, WithCapacity(10))
	for i := 0; i < 11; i++ {
		l.Record(fmt.Sprintf("op-%d", i), nil, model.Allowed)
	}

	if l.Len() != 5 {
		t.Fatalf("expected 5 records after truncation, got %d", l.Len())
	}
	got := l.Query(0)
	for i, rec := range got {
		want := fmt.Sprintf("op-%d", 6+i)
		if rec.Operation != want {
			t.Errorf("record %d = %s, want %s", i, rec.Operation, want)
		}
	}
	if l.Truncations() != 1 {
		t.Errorf("expected 1 truncation, got %d", l.Truncations())
	}
}

func TestCapNeverExceeded(t *testing.T) {
	l := newTestLog(t, WithCapacity(100))
	for i := 0; i < 1000; i++ {
		l.Record("op", nil, model.Allowed)
		if l.Len() > 100 {
			t.Fatalf("log grew to %d past capacity 100", l.Len())
		}
	}
	last := l.Query(1)[0]
	if last.Seq != 1000 {
		t.Errorf("expected newest record retained, got seq %d", last.Seq)
	}
}

func TestDefaultCapacity(t *testing.T) {
	if New().Capacity() != DefaultCapacity {
		t.Errorf("expected default capacity %d", DefaultCapacity)
	}
	if New(WithCapacity(0)).Capacity() != 2 {
		t.Error("expected capacity floor of 2")
	}
}

func TestUnencodableArgumentsStillRecorded(t *testing.T) {
	l := newTestLog(t)
	rec := l.Record("op", map[string]any{"callback": func() {}}, model.Allowed)
	if rec.Hash == "" {
		t.Fatal("expected hash even for unencodable arguments")
	}
	if _, ok := rec.Arguments["_error"]; !ok {
		t.Errorf("expected arguments replaced, got %v", rec.Arguments)
	}
	if res := Verify(l.Query(0)); !res.Valid {
		t.Errorf("expected valid chain, got %s", res.Error)
	}
}

func TestVerifyValidChain(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 5; i++ {
		l.Record("op", map[string]any{"i": i}, model.Allowed)
	}
	res := Verify(l.Query(0))
	if !res.Valid || res.Records != 5 {
		t.Fatalf("expected valid chain of 5, got %+v", res)
	}
}

func TestVerifyAfterTruncation(t *testing.T) {
	l := newTestLog(t, WithCapacity(4))
	for i := 0; i < 9; i++ {
		l.Record("op", nil, model.Allowed)
	}
	if res := Verify(l.Query(0)); !res.Valid {
		t.Fatalf("expected retained suffix to verify, got %s", res.Error)
	}
}

func TestVerifyDetectsTamperedRecord(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record("op", nil, model.Forbidden)
	}
	recs := l.Query(0)
	recs[1].Verdict = model.Allowed

	res := Verify(recs)
	if res.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if res.ErrorIndex != 1 || !strings.Contains(res.Error, "content hash") {
		t.Errorf("expected content hash error at 1, got %+v", res)
	}
}

func TestVerifyDetectsDeletedRecord(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record("op", nil, model.Allowed)
	}
	recs := l.Query(0)
	res := Verify([]Record{recs[0], recs[2]})
	if res.Valid {
		t.Fatal("expected chain with deleted record to be invalid")
	}
	if res.ErrorIndex != 1 {
		t.Errorf("expected error at index 1, got %d", res.ErrorIndex)
	}
}

func TestVerifyDetectsForgedGenesis(t *testing.T) {
	l := newTestLog(t)
	l.Record("op", nil, model.Allowed)
	recs := l.Query(0)
	recs[0].PrevHash = "sha256:fake"
	recs[0].Hash = hashRecord(&recs[0])

	res := Verify(recs)
	if res.Valid || !strings.Contains(res.Error, "genesis") {
		t.Errorf("expected genesis error, got %+v", res)
	}
}

func TestConcurrentAppendKeepsChain(t *testing.T) {
	l := newTestLog(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(fmt.Sprintf("op-%d", i), nil, model.Allowed)
			}
		}(i)
	}
	wg.Wait()

	recs := l.Query(0)
	if len(recs) != 1000 {
		t.Fatalf("expected 1000 records, got %d", len(recs))
	}
	if res := Verify(recs); !res.Valid {
		t.Fatalf("expected valid chain after concurrent appends, got %s", res.Error)
	}
}
