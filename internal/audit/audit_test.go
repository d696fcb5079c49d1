package audit

import (
	"testing"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/events"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// buildChain creates n hashed entries linked oldest to newest. The
// repository does this under its chain lock; tests do it by hand.
func buildChain(n int) []Entry {
	entries := make([]Entry, n)
	prevHash := ""
	for i := 0; i < n; i++ {
		e := NewEntry(ActorStaff, types.NewID(), "admission.created", "admission",
			types.NewID().String(), map[string]any{"index": i})
		e.Sequence = int64(i + 1)
		e.PrevHash = prevHash
		e.Hash = e.ComputeHash()
		prevHash = e.Hash
		entries[i] = *e
	}
	return entries
}

// newestFirst reverses a chain into the order the repository reads it
func newestFirst(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// TestNewEntry tests creating an audit entry
func TestNewEntry(t *testing.T) {
	actorID := types.NewID()

	entry := NewEntry(ActorStaff, actorID, "patient.created", "patient",
		"c1a0", map[string]any{"mrn": "MRN-1001"})

	if entry.ID.IsZero() {
		t.Error("Expected non-zero ID")
	}

	if entry.ActorType != ActorStaff {
		t.Errorf("Expected ActorStaff, got %s", entry.ActorType)
	}

	if entry.ActorID != actorID {
		t.Errorf("Expected actorID %s, got %s", actorID, entry.ActorID)
	}

	if entry.Action != "patient.created" {
		t.Errorf("Expected action patient.created, got %s", entry.Action)
	}

	if entry.Hash != "" {
		t.Error("Expected empty hash before append")
	}

	// Timestamps must round-trip through TIMESTAMPTZ unchanged
	if entry.Timestamp.Nanosecond()%1000 != 0 {
		t.Error("Timestamp should be truncated to microseconds")
	}

	if entry.Timestamp.Location() != time.UTC {
		t.Error("Timestamp should be in UTC")
	}
}

// TestHashChainIntegrity tests that hash chain links are valid
func TestHashChainIntegrity(t *testing.T) {
	entries := buildChain(5)

	for i, e := range entries {
		if !e.VerifyHash() {
			t.Errorf("Entry %d has invalid hash", i)
		}
	}

	if entries[0].PrevHash != "" {
		t.Error("Expected empty prev_hash for first entry")
	}

	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			t.Errorf("Chain broken at entry %d: expected prev_hash %s, got %s",
				i, entries[i-1].Hash, entries[i].PrevHash)
		}
	}
}

// TestTamperDetection tests that modifying an entry invalidates its hash
func TestTamperDetection(t *testing.T) {
	entry := NewEntry(ActorStaff, types.NewID(), "note.created", "note",
		"12", map[string]any{"note_type": "progress"})
	entry.Hash = entry.ComputeHash()

	if !entry.VerifyHash() {
		t.Error("Hash should be valid before tampering")
	}

	entry.Details["note_type"] = "discharge"

	if entry.VerifyHash() {
		t.Error("Hash should be invalid after tampering")
	}

	if entry.ComputeHash() == entry.Hash {
		t.Error("Computed hash should differ after tampering")
	}
}

// TestCanonicalJSONDeterminism tests that canonical JSON produces consistent output
func TestCanonicalJSONDeterminism(t *testing.T) {
	details := map[string]any{
		"zebra":  "last",
		"apple":  "first",
		"middle": "middle",
		"nested": map[string]any{
			"z": 3,
			"a": 1,
			"m": 2,
		},
	}

	entry1 := NewEntry(ActorStaff, types.NewID(), "admission.updated", "admission",
		"a1b2", details)
	entry1.PrevHash = "prevhash"
	entry1.Hash = entry1.ComputeHash()

	entry2 := &Entry{
		ID:           entry1.ID,
		Timestamp:    entry1.Timestamp,
		PrevHash:     entry1.PrevHash,
		ActorType:    entry1.ActorType,
		ActorID:      entry1.ActorID,
		Action:       entry1.Action,
		ResourceType: entry1.ResourceType,
		ResourceID:   entry1.ResourceID,
		Details:      details,
	}
	entry2.Hash = entry2.ComputeHash()

	if entry1.Hash != entry2.Hash {
		t.Errorf("Hashes should be identical for same data: got %s and %s", entry1.Hash, entry2.Hash)
	}
}

// TestActorNameNotHashed tests that display names can be backfilled
// without breaking verification
func TestActorNameNotHashed(t *testing.T) {
	entry := NewEntry(ActorStaff, types.NewID(), "patient.updated", "patient",
		"c1a0", nil)
	entry.Hash = entry.ComputeHash()

	entry.ActorName = "Dr. Salem"

	if !entry.VerifyHash() {
		t.Error("Setting the actor name should not invalidate the hash")
	}
}

// TestVerifyEntriesValidChain tests verification over an intact chain
func TestVerifyEntriesValidChain(t *testing.T) {
	entries := newestFirst(buildChain(10))

	result := verifyEntries(entries, false)

	if !result.Valid {
		t.Errorf("Expected valid chain, got violations: %v", result.Violations)
	}

	if result.Checked != 10 {
		t.Errorf("Expected 10 checked, got %d", result.Checked)
	}

	if result.ContentValid != 10 {
		t.Errorf("Expected 10 content-valid, got %d", result.ContentValid)
	}

	if result.LinkageValid != 9 {
		t.Errorf("Expected 9 linkage checks, got %d", result.LinkageValid)
	}

	if len(result.Entries) != 0 {
		t.Error("Expected no per-entry details without includeDetails")
	}
}

// TestVerifyEntriesContentTamper tests detection of a rewritten entry
func TestVerifyEntriesContentTamper(t *testing.T) {
	chain := buildChain(10)
	chain[4].Details["index"] = 999

	result := verifyEntries(newestFirst(chain), true)

	if result.Valid {
		t.Error("Expected invalid chain after tampering")
	}

	if result.ContentInvalid != 1 {
		t.Errorf("Expected 1 content violation, got %d", result.ContentInvalid)
	}

	if len(result.Entries) != 10 {
		t.Errorf("Expected 10 entry details, got %d", len(result.Entries))
	}

	var tampered *EntryResult
	for i := range result.Entries {
		if result.Entries[i].Sequence == 5 {
			tampered = &result.Entries[i]
		}
	}
	if tampered == nil {
		t.Fatal("Expected a detail for the tampered entry")
	}
	if tampered.ContentValid {
		t.Error("Tampered entry should fail the content check")
	}
	if tampered.ViolationType != "content" {
		t.Errorf("Expected violation type content, got %s", tampered.ViolationType)
	}
}

// TestVerifyEntriesBrokenLink tests detection of a severed chain
func TestVerifyEntriesBrokenLink(t *testing.T) {
	chain := buildChain(10)

	// Rewrite an entry and re-hash it. The content check passes but
	// the next entry's prev_hash no longer matches.
	chain[4].Details["index"] = 999
	chain[4].Hash = chain[4].ComputeHash()

	result := verifyEntries(newestFirst(chain), true)

	if result.Valid {
		t.Error("Expected invalid chain after re-hashing a middle entry")
	}

	if result.ContentInvalid != 0 {
		t.Errorf("Expected no content violations, got %d", result.ContentInvalid)
	}

	if result.LinkageInvalid != 1 {
		t.Errorf("Expected 1 linkage violation, got %d", result.LinkageInvalid)
	}

	for _, detail := range result.Entries {
		if detail.Sequence == 5 && detail.LinkageValid {
			t.Error("Re-hashed entry should fail the linkage check")
		}
	}
}

// TestEventToEntry tests the event-to-audit mapping
func TestEventToEntry(t *testing.T) {
	actorID := types.NewID()

	tests := []struct {
		name             string
		event            events.Event
		wantNil          bool
		wantActorType    ActorType
		wantResourceType string
		wantResourceID   string
	}{
		{
			name: "StaffAdmission",
			event: events.NewEvent(events.AdmissionDischarged, "roster", map[string]any{
				"admission_id": "7d2f",
				"mrn":          "MRN-1001",
			}).WithActor(actorID, "staff", "Dr. Salem"),
			wantActorType:    ActorStaff,
			wantResourceType: "admission",
			wantResourceID:   "7d2f",
		},
		{
			name: "NumericConsultationID",
			event: events.NewEvent(events.ConsultationCompleted, "roster", map[string]any{
				"id": float64(55),
			}).WithActor(actorID, "staff", "Dr. Salem"),
			wantActorType:    ActorStaff,
			wantResourceType: "consultation",
			wantResourceID:   "55",
		},
		{
			name: "ImportIsSystemActor",
			event: events.NewEvent(events.PatientCreated, "his", map[string]any{
				"patient_id": "c1a0",
			}).WithActor(actorID, "his-import", "HIS Import"),
			wantActorType:    ActorSystem,
			wantResourceType: "patient",
			wantResourceID:   "c1a0",
		},
		{
			name:    "NonResourceEventSkipped",
			event:   events.NewEvent("heartbeat", "system", nil),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := eventToEntry(tt.event)

			if tt.wantNil {
				if entry != nil {
					t.Errorf("Expected nil entry, got %+v", entry)
				}
				return
			}

			if entry == nil {
				t.Fatal("Expected an entry, got nil")
			}

			if entry.ActorType != tt.wantActorType {
				t.Errorf("Expected actor type %s, got %s", tt.wantActorType, entry.ActorType)
			}

			if entry.ResourceType != tt.wantResourceType {
				t.Errorf("Expected resource type %s, got %s", tt.wantResourceType, entry.ResourceType)
			}

			if entry.ResourceID != tt.wantResourceID {
				t.Errorf("Expected resource id %s, got %s", tt.wantResourceID, entry.ResourceID)
			}

			if entry.Action != tt.event.Type {
				t.Errorf("Expected action %s, got %s", tt.event.Type, entry.Action)
			}
		})
	}
}

// TestEventToEntryTypedData tests that struct payloads are normalized
func TestEventToEntryTypedData(t *testing.T) {
	payload := struct {
		AdmissionID string `json:"admission_id"`
		Department  string `json:"department"`
	}{AdmissionID: "9f3c", Department: "Neurology"}

	event := events.NewEvent(events.AdmissionCreated, "ward", payload).
		WithActor(types.NewID(), "staff", "Dr. Salem")

	entry := eventToEntry(event)
	if entry == nil {
		t.Fatal("Expected an entry, got nil")
	}

	if entry.ResourceID != "9f3c" {
		t.Errorf("Expected resource id 9f3c, got %s", entry.ResourceID)
	}

	if entry.Details["department"] != "Neurology" {
		t.Errorf("Expected department in details, got %v", entry.Details)
	}
}
