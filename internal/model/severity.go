package model

// Severity classifies how urgent a platform event is. Rules use it as a
// minimum threshold: a channel is only notified when the event severity
// ranks at or above the rule's minimum.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity. Unknown values rank
// below info so they never pass a threshold gate.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s meets the given minimum severity.
func (s Severity) AtLeast(min Severity) bool {
	return s.Valid() && s.Rank() >= min.Rank()
}

func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityCritical}
}
