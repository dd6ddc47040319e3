package enums

type Decision string

const (
	DecisionSkip       Decision = "skip"
	DecisionForceCheck Decision = "force-check"
	DecisionSample     Decision = "sample"
	// DecisionReject deletes the message without classification.
	DecisionReject Decision = "reject"
)
