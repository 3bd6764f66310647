package service

import (
	"math"
	"sort"

	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/models"
	"github.com/potholeops/backend/internal/utils"
)

// DefaultMaxOpenTickets caps how many ASSIGNED or IN_PROGRESS tickets a
// worker may hold before auto-assignment skips them.
const DefaultMaxOpenTickets = 3

type EligibilityResult struct {
	Eligible   []models.Worker
	ReasonCode string
	ReasonText string
	Stages     []EligibilityStage
}

type EligibilityStage struct {
	Name       string
	Candidates []models.Worker
}

func FilterEligibleWorkers(workers []models.Worker, maxOpen int) EligibilityResult {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenTickets
	}
	var result EligibilityResult

	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "candidates",
		Candidates: workers,
	})
	if len(workers) == 0 {
		result.ReasonCode = "NO_WORKERS"
		result.ReasonText = "No workers registered"
		return result
	}

	active := filterWorkers(workers, func(w models.Worker) bool {
		return w.IsActive
	})
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "active_rule",
		Candidates: active,
	})
	if len(active) == 0 {
		result.ReasonCode = "NO_ACTIVE_WORKERS"
		result.ReasonText = "No active workers"
		return result
	}

	withCapacity := filterWorkers(active, func(w models.Worker) bool {
		return w.OpenTickets < maxOpen
	})
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "capacity_rule",
		Candidates: withCapacity,
	})
	if len(withCapacity) == 0 {
		result.ReasonCode = "ALL_WORKERS_BUSY"
		result.ReasonText = "Every active worker is at capacity"
		return result
	}

	result.Eligible = withCapacity
	return result
}

// PickWorker orders eligible workers by open load, then distance to site
// (unknown locations last), then id, and picks one of the first two by a
// hash of the ticket id so repeated calls for one ticket agree.
func PickWorker(ticketID string, site *geo.Point, eligible []models.Worker) (models.Worker, []models.Worker) {
	ordered := make([]models.Worker, len(eligible))
	copy(ordered, eligible)
	dist := func(w models.Worker) float64 {
		if site == nil || !w.HasLocation() {
			return math.Inf(1)
		}
		return geo.HaversineMeters(*w.CurrentLatitude, *w.CurrentLongitude, site.Lat, site.Lon)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].OpenTickets != ordered[j].OpenTickets {
			return ordered[i].OpenTickets < ordered[j].OpenTickets
		}
		di, dj := dist(ordered[i]), dist(ordered[j])
		if di != dj {
			return di < dj
		}
		return ordered[i].ID < ordered[j].ID
	})

	top2 := ordered
	if len(top2) > 2 {
		top2 = ordered[:2]
	}
	idx := int(utils.HashStringToUint64(ticketID) % uint64(len(top2)))
	return top2[idx], top2
}

func stageCounts(elig EligibilityResult) map[string]int {
	out := map[string]int{}
	for _, stage := range elig.Stages {
		out[stage.Name] = len(stage.Candidates)
	}
	return out
}

func filterWorkers(workers []models.Worker, keep func(models.Worker) bool) []models.Worker {
	out := make([]models.Worker, 0, len(workers))
	for _, w := range workers {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}
