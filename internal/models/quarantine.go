package models

// RejectionReason is the flat reason persisted with every quarantined packet.
const RejectionReason = "Schema/Physics Violation"

// QuarantineRecord is a packet that failed validation, annotated with why.
type QuarantineRecord struct {
	TelemetryPacket `bson:",inline"`
	RejectionReason string   `bson:"rejection_reason" json:"rejection_reason"`
	Violations      []string `bson:"violations" json:"violations"`
	RunID           string   `bson:"run_id,omitempty" json:"run_id,omitempty"`
}

// QuarantineColumns is TelemetryColumns plus the rejection reason.
var QuarantineColumns = append(append([]string{}, TelemetryColumns...), "rejection_reason")
