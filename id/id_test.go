package id_test

import (
	"strings"
	"testing"
	"time"

	"github.com/xraph/conveyor/id"
)

func TestNewJobID_WireForm(t *testing.T) {
	jid := id.NewJobID().String()

	if !strings.HasPrefix(jid, "job_") {
		t.Fatalf("jid = %q, want job_ prefix", jid)
	}
	suffix := strings.TrimPrefix(jid, "job_")
	if len(suffix) != 26 {
		t.Errorf("suffix %q has length %d, want 26", suffix, len(suffix))
	}
	// The jid travels inside protocol lines, so it must stay a single
	// lowercase token.
	if strings.ContainsAny(jid, " \r\n") || jid != strings.ToLower(jid) {
		t.Errorf("jid %q is not a safe wire token", jid)
	}
}

func TestNewWorkerID_Prefix(t *testing.T) {
	wid := id.NewWorkerID()

	if wid.Prefix() != id.PrefixWorker {
		t.Errorf("Prefix() = %q, want %q", wid.Prefix(), id.PrefixWorker)
	}
	if !strings.HasPrefix(wid.String(), "wkr_") {
		t.Errorf("wid = %q, want wkr_ prefix", wid.String())
	}
}

func TestIDs_AreUniqueAndSortable(t *testing.T) {
	if a, b := id.NewJobID(), id.NewJobID(); a.String() == b.String() {
		t.Fatalf("consecutive jids collided: %q", a)
	}

	// UUIDv7-based, so ids minted in different milliseconds sort in
	// mint order.
	first := id.NewJobID().String()
	time.Sleep(5 * time.Millisecond)
	second := id.NewJobID().String()
	if first >= second {
		t.Errorf("ids not time-ordered: %q then %q", first, second)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	orig := id.NewJobID()

	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", orig, err)
	}
	if parsed.String() != orig.String() || parsed.Prefix() != id.PrefixJob {
		t.Errorf("round-trip gave %q (%q)", parsed, parsed.Prefix())
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, bad := range []string{"", "not an id", "job_!!!"} {
		if _, err := id.Parse(bad); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", bad)
		}
	}
}

func TestPrefixedParsers_RejectCrossType(t *testing.T) {
	if _, err := id.ParseJobID(id.NewWorkerID().String()); err == nil {
		t.Error("ParseJobID accepted a wkr_ id")
	}
	if _, err := id.ParseWorkerID(id.NewJobID().String()); err == nil {
		t.Error("ParseWorkerID accepted a job_ id")
	}

	wid := id.NewWorkerID()
	got, err := id.ParseWorkerID(wid.String())
	if err != nil {
		t.Fatalf("ParseWorkerID(%q) failed: %v", wid, err)
	}
	if got.String() != wid.String() {
		t.Errorf("ParseWorkerID returned %q, want %q", got, wid)
	}
}

func TestMustParse_PanicsOnGarbage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse did not panic on garbage")
		}
	}()
	id.MustParse("definitely not a typeid")
}

func TestNilID(t *testing.T) {
	var zero id.ID

	if !zero.IsNil() {
		t.Error("zero-value ID should report IsNil")
	}
	if zero.String() != "" || zero.Prefix() != "" {
		t.Errorf("nil ID renders as %q/%q, want empty", zero.String(), zero.Prefix())
	}
	if id.NewJobID().IsNil() {
		t.Error("minted ID reports IsNil")
	}
}

func TestTextMarshaling(t *testing.T) {
	orig := id.NewWorkerID()
	data, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var back id.ID
	if err := back.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(%q) failed: %v", data, err)
	}
	if back.String() != orig.String() {
		t.Errorf("round-trip gave %q, want %q", back, orig)
	}

	// Empty text is the nil ID, both directions.
	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil || !empty.IsNil() {
		t.Errorf("UnmarshalText(nil) = %v, id %q", err, empty)
	}
}
