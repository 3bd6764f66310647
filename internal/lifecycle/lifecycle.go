package lifecycle

import (
	"fmt"
	"strings"

	"github.com/potholeops/backend/internal/apperr"
)

type Status string

const (
	StatusDetected             Status = "DETECTED"
	StatusRanked               Status = "RANKED"
	StatusAssigned             Status = "ASSIGNED"
	StatusInProgress           Status = "IN_PROGRESS"
	StatusAwaitingVerification Status = "AWAITING_VERIFICATION"
	StatusResolved             Status = "RESOLVED"
	StatusRejected             Status = "REJECTED"
)

// All lists every status in workflow order.
var All = []Status{
	StatusDetected,
	StatusRanked,
	StatusAssigned,
	StatusInProgress,
	StatusAwaitingVerification,
	StatusResolved,
	StatusRejected,
}

var transitions = map[Status][]Status{
	StatusDetected:             {StatusRanked, StatusRejected},
	StatusRanked:               {StatusAssigned, StatusRejected},
	StatusAssigned:             {StatusInProgress, StatusRanked, StatusRejected},
	StatusInProgress:           {StatusAwaitingVerification, StatusAssigned, StatusRejected},
	StatusAwaitingVerification: {StatusResolved, StatusRejected, StatusInProgress},
	StatusResolved:             {},
	StatusRejected:             {StatusRanked},
}

type Context struct {
	HasAssignedWorker bool
	HasProofUploaded  bool
}

type Result struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := transitions[st]; !ok {
		return "", apperr.Invalid("status", s, "unknown ticket status")
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ValidNext returns a copy of the allowed targets for s.
func ValidNext(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

func IsTerminal(s Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func Validate(current, requested Status) Result {
	if current == requested {
		return Result{IsValid: true}
	}
	for _, s := range transitions[current] {
		if s == requested {
			return Result{IsValid: true}
		}
	}
	return Result{
		IsValid: false,
		Reason:  fmt.Sprintf("Cannot transition from %s to %s. Valid transitions: %s", current, requested, joinStatuses(transitions[current])),
	}
}

func ValidateWithContext(current, requested Status, ctx Context) Result {
	base := Validate(current, requested)
	if !base.IsValid {
		return base
	}
	if requested == StatusInProgress && !ctx.HasAssignedWorker {
		return Result{IsValid: false, Reason: "Cannot start work without assigned worker"}
	}
	if requested == StatusAwaitingVerification && !ctx.HasProofUploaded {
		return Result{IsValid: false, Reason: "Cannot request verification without uploading proof"}
	}
	return Result{IsValid: true}
}

// Check is ValidateWithContext returning a *TransitionError on denial.
func Check(current, requested Status, ctx Context) error {
	res := ValidateWithContext(current, requested, ctx)
	if res.IsValid {
		return nil
	}
	return &TransitionError{From: current, To: requested, Reason: res.Reason, ValidNext: ValidNext(current)}
}

type TransitionError struct {
	From      Status
	To        Status
	Reason    string
	ValidNext []Status
}

func (e *TransitionError) Error() string {
	return e.Reason
}

func joinStatuses(list []Status) string {
	if len(list) == 0 {
		return "none"
	}
	parts := make([]string, len(list))
	for i, s := range list {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
