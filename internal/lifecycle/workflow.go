package lifecycle

type Stage struct {
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
}

var stages = map[Status]Stage{
	StatusDetected:             {"Detection", 10},
	StatusRanked:               {"Prioritization", 25},
	StatusAssigned:             {"Assignment", 40},
	StatusInProgress:           {"Repair", 65},
	StatusAwaitingVerification: {"Verification", 85},
	StatusResolved:             {"Completed", 100},
	StatusRejected:             {"Rejected", 0},
}

var descriptions = map[Status]string{
	StatusDetected:             "Pothole detected by AI, awaiting severity ranking",
	StatusRanked:               "Severity calculated, ready for worker assignment",
	StatusAssigned:             "Assigned to worker, awaiting start",
	StatusInProgress:           "Worker is actively repairing the pothole",
	StatusAwaitingVerification: "Repair completed, awaiting admin verification",
	StatusResolved:             "Repair verified and ticket closed",
	StatusRejected:             "Ticket rejected or repair not approved",
}

func WorkflowStage(s Status) Stage {
	if st, ok := stages[s]; ok {
		return st
	}
	return Stage{Stage: "Unknown", Progress: 0}
}

func Describe(s Status) string {
	if d, ok := descriptions[s]; ok {
		return d
	}
	return "Unknown status"
}

// Recipients says who must hear about a transition.
type Recipients struct {
	Worker  bool `json:"worker"`
	Citizen bool `json:"citizen"`
	Admin   bool `json:"admin"`
}

func (r Recipients) Any() bool {
	return r.Worker || r.Citizen || r.Admin
}

type edge struct {
	from, to Status
}

var notifications = map[edge]Recipients{
	{StatusRanked, StatusAssigned}:                 {Worker: true},
	{StatusAssigned, StatusInProgress}:             {Citizen: true},
	{StatusInProgress, StatusAwaitingVerification}: {Admin: true},
	{StatusAwaitingVerification, StatusResolved}:   {Worker: true, Citizen: true},
	{StatusAwaitingVerification, StatusRejected}:   {Worker: true},
}

func Notifications(from, to Status) Recipients {
	return notifications[edge{from, to}]
}
