package attend

import "time"

// Sentinel values substituted by Normalize when a wire record omits a field.
const (
	UnknownSchoolID       = "Unknown"
	UnknownFullName       = "Unknown User"
	DefaultClassification = "Unclassified"
)

// AttendanceEvent is one normalized attendance record held in the client
// window. Within a window instance ids are unique.
type AttendanceEvent struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	FullName       string    `json:"full_name"`
	RecordedAt     time.Time `json:"time_in_date"`
	Classification string    `json:"classification"`
	PurposeLabel   string    `json:"purpose_label,omitempty"`
}

// Record is the raw wire form of an attendance record before normalization.
// Any field may be absent; RecordedAt is the untrusted RFC 3339 string as
// sent by the server.
type Record struct {
	ID             string `json:"id"`
	SchoolID       string `json:"school_id"`
	FullName       string `json:"full_name"`
	RecordedAt     string `json:"time_in_date"`
	Classification string `json:"classification"`
	PurposeLabel   string `json:"purpose_label,omitempty"`
}

// SubmitRequest is a user-originated attendance submission. Classification
// and PurposeLabel are optional; the server applies its own fallbacks.
type SubmitRequest struct {
	SchoolID       string `json:"school_id"`
	FullName       string `json:"full_name"`
	Classification string `json:"classification,omitempty"`
	PurposeLabel   string `json:"purpose_label,omitempty"`
}
