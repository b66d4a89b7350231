package order

// Status is the workflow state of an order.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusRedirected     Status = "REDIRECTED"
	StatusOrdered        Status = "ORDERED"
	StatusProofSubmitted Status = "PROOF_SUBMITTED"
	StatusUnderReview    Status = "UNDER_REVIEW"
	StatusApproved       Status = "APPROVED"
	StatusRejected       Status = "REJECTED"
	StatusRewardPending  Status = "REWARD_PENDING"
	StatusCompleted      Status = "COMPLETED"
	StatusFailed         Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusCreated:        {StatusRedirected},
	StatusRedirected:     {StatusOrdered},
	StatusOrdered:        {StatusProofSubmitted},
	StatusProofSubmitted: {StatusUnderReview},
	StatusUnderReview:    {StatusApproved, StatusRejected, StatusProofSubmitted},
	StatusApproved:       {StatusRewardPending},
	StatusRejected:       {StatusFailed, StatusProofSubmitted},
	StatusRewardPending:  {StatusCompleted, StatusFailed},
}

// AllStatuses lists every state in workflow order.
var AllStatuses = []Status{
	StatusCreated, StatusRedirected, StatusOrdered, StatusProofSubmitted, StatusUnderReview,
	StatusApproved, StatusRejected, StatusRewardPending, StatusCompleted, StatusFailed,
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Allowed returns a copy of the states reachable from s. Terminal states
// return an empty slice.
func Allowed(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

func terminalStatuses() []Status {
	return []Status{StatusCompleted, StatusFailed}
}
