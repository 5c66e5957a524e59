package model

type SignalKind string

const (
	SignalComplaint   SignalKind = "complaint"
	SignalTicket      SignalKind = "ticket"
	SignalTestFailure SignalKind = "test_failure"
	SignalDocEdit     SignalKind = "doc_edit"
)

// RawSignal is one piece of recent activity pulled from a signal source
// before clustering.
type RawSignal struct {
	Source     string     `json:"source"`
	Kind       SignalKind `json:"kind"`
	Text       string     `json:"text"`
	Ref        string     `json:"ref"`
	OccurredAt int64      `json:"occurred_at"`
}
