package validation

import (
	"github.com/ukydev/fleet-telemetry/internal/models"
)

// Result partitions a batch. Both halves keep the batch order.
type Result struct {
	Valid   []models.TelemetryPacket
	Invalid []models.QuarantineRecord
}

// Total returns len(Valid) + len(Invalid).
func (r Result) Total() int { return len(r.Valid) + len(r.Invalid) }

// ViolationCounts tallies how often each rule fired. A packet breaking two rules
// contributes to both codes but appears once in Invalid.
func (r Result) ViolationCounts() map[string]int {
	counts := make(map[string]int)
	for _, rec := range r.Invalid {
		for _, code := range rec.Violations {
			counts[code]++
		}
	}
	return counts
}

// Validator applies a fixed rule set. It holds no state between calls.
type Validator struct {
	rules []Rule
}

// New returns a Validator over rules, or over DefaultRules when none are given.
func New(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Validator{rules: append([]Rule(nil), rules...)}
}

// Validate classifies every packet exactly once. It never fails.
func (v *Validator) Validate(packets []models.TelemetryPacket) Result {
	res := Result{
		Valid: make([]models.TelemetryPacket, 0, len(packets)),
	}
	for i := range packets {
		p := &packets[i]
		codes := v.violations(p)
		if len(codes) == 0 {
			res.Valid = append(res.Valid, *p)
			continue
		}
		res.Invalid = append(res.Invalid, models.QuarantineRecord{
			TelemetryPacket: *p,
			RejectionReason: models.RejectionReason,
			Violations:      codes,
		})
	}
	return res
}

func (v *Validator) violations(p *models.TelemetryPacket) []string {
	var codes []string
	for _, r := range v.rules {
		if r.Check(p) {
			codes = append(codes, r.Code)
		}
	}
	return codes
}

var defaultValidator = New()

// Validate runs the default rule set.
func Validate(packets []models.TelemetryPacket) Result {
	return defaultValidator.Validate(packets)
}
