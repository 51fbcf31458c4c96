package order

// Status is the order status string used by the trade gateway.
type Status string

const (
	StatusUnknown              Status = ""
	StatusNotReported          Status = "NotReported"
	StatusReplacedNotReported  Status = "ReplacedNotReported"
	StatusProtectedNotReported Status = "ProtectedNotReported"
	StatusVarietiesNotReported Status = "VarietiesNotReported"
	StatusWaitToNew            Status = "WaitToNew"
	StatusNew                  Status = "NewStatus"
	StatusPartialFilled        Status = "PartialFilledStatus"
	StatusWaitToReplace        Status = "WaitToReplace"
	StatusPendingReplace       Status = "PendingReplaceStatus"
	StatusWaitToCancel         Status = "WaitToCancel"
	StatusPendingCancel        Status = "PendingCancelStatus"
	StatusFilled               Status = "FilledStatus"
	StatusCanceled             Status = "CanceledStatus"
	StatusReplaced             Status = "ReplacedStatus"
	StatusRejected             Status = "RejectedStatus"
	StatusExpired              Status = "ExpiredStatus"
	StatusPartialWithdrawal    Status = "PartialWithdrawal"
)

// Phase groups statuses for transition checks.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhasePending
	PhaseActive
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

var phases = map[Status]Phase{
	StatusNotReported:          PhasePending,
	StatusReplacedNotReported:  PhasePending,
	StatusProtectedNotReported: PhasePending,
	StatusVarietiesNotReported: PhasePending,
	StatusWaitToNew:            PhasePending,
	StatusNew:                  PhaseActive,
	StatusPartialFilled:        PhaseActive,
	StatusWaitToReplace:        PhaseActive,
	StatusPendingReplace:       PhaseActive,
	StatusWaitToCancel:         PhaseActive,
	StatusPendingCancel:        PhaseActive,
	StatusFilled:               PhaseTerminal,
	StatusCanceled:             PhaseTerminal,
	StatusReplaced:             PhaseTerminal,
	StatusRejected:             PhaseTerminal,
	StatusExpired:              PhaseTerminal,
	StatusPartialWithdrawal:    PhaseTerminal,
}

func (s Status) Phase() Phase { return phases[s] }

func (s Status) Valid() bool { return s.Phase() != PhaseUnknown }

func (s Status) IsTerminal() bool { return s.Phase() == PhaseTerminal }

func (s Status) String() string {
	if s == StatusUnknown {
		return "Unknown"
	}
	return string(s)
}

// CanTransition reports whether an order in from may move to to. Repeats
// are allowed; a terminal status admits only itself; pending statuses are
// reachable only from pending. An unknown from admits anything.
func CanTransition(from, to Status) bool {
	if !to.Valid() {
		return false
	}
	if from == to || from == StatusUnknown {
		return true
	}
	switch {
	case from.IsTerminal():
		return false
	case to.Phase() == PhasePending:
		return from.Phase() == PhasePending
	default:
		return true
	}
}
