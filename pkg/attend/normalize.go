package attend

import (
	"time"

	"github.com/google/uuid"
)

// Normalize converts a raw wire record into a total AttendanceEvent. It never
// fails: a missing id gets a fresh uuid, a missing or unparsable timestamp is
// replaced by receivedAt, and the remaining fields fall back to their
// sentinels. Re-normalizing an already-normalized record is a no-op.
func Normalize(raw Record, receivedAt time.Time) AttendanceEvent {
	ev := AttendanceEvent{
		ID:             raw.ID,
		SchoolID:       raw.SchoolID,
		FullName:       raw.FullName,
		Classification: raw.Classification,
		PurposeLabel:   raw.PurposeLabel,
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.SchoolID == "" {
		ev.SchoolID = UnknownSchoolID
	}
	if ev.FullName == "" {
		ev.FullName = UnknownFullName
	}
	if ev.Classification == "" {
		ev.Classification = DefaultClassification
	}

	if t, err := time.Parse(time.RFC3339, raw.RecordedAt); err == nil {
		ev.RecordedAt = t
	} else {
		ev.RecordedAt = receivedAt
	}

	return ev
}

// Record converts a normalized event back to its wire form.
func (e AttendanceEvent) Record() Record {
	return Record{
		ID:             e.ID,
		SchoolID:       e.SchoolID,
		FullName:       e.FullName,
		RecordedAt:     e.RecordedAt.Format(time.RFC3339Nano),
		Classification: e.Classification,
		PurposeLabel:   e.PurposeLabel,
	}
}
