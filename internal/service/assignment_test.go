package service

import (
	"testing"

	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/models"
)

func fptr(v float64) *float64 { return &v }

func TestFilterEligibleWorkers(t *testing.T) {
	workers := []models.Worker{
		{ID: "w1", IsActive: true, OpenTickets: 1},
		{ID: "w2", IsActive: false},
		{ID: "w3", IsActive: true, OpenTickets: 3},
	}
	res := FilterEligibleWorkers(workers, 3)
	if len(res.Eligible) != 1 || res.Eligible[0].ID != "w1" {
		t.Fatalf("expected only w1 eligible, got %+v", res.Eligible)
	}
	counts := stageCounts(res)
	if counts["candidates"] != 3 || counts["active_rule"] != 2 || counts["capacity_rule"] != 1 {
		t.Fatalf("unexpected stage counts %v", counts)
	}
}

func TestFilterEligibleWorkersReasons(t *testing.T) {
	if res := FilterEligibleWorkers(nil, 0); res.ReasonCode != "NO_WORKERS" {
		t.Fatalf("expected NO_WORKERS, got %s", res.ReasonCode)
	}
	inactive := []models.Worker{{ID: "w1"}}
	if res := FilterEligibleWorkers(inactive, 0); res.ReasonCode != "NO_ACTIVE_WORKERS" {
		t.Fatalf("expected NO_ACTIVE_WORKERS, got %s", res.ReasonCode)
	}
	busy := []models.Worker{{ID: "w1", IsActive: true, OpenTickets: DefaultMaxOpenTickets}}
	if res := FilterEligibleWorkers(busy, 0); res.ReasonCode != "ALL_WORKERS_BUSY" {
		t.Fatalf("expected ALL_WORKERS_BUSY, got %s", res.ReasonCode)
	}
}

func TestPickWorkerDeterministic(t *testing.T) {
	eligible := []models.Worker{
		{ID: "w1", OpenTickets: 2},
		{ID: "w2", OpenTickets: 0},
		{ID: "w3", OpenTickets: 0},
	}
	a, top2 := PickWorker("ticket-1", nil, eligible)
	b, _ := PickWorker("ticket-1", nil, eligible)
	if a.ID != b.ID {
		t.Fatalf("expected deterministic assignment")
	}
	if len(top2) != 2 || top2[0].ID != "w2" || top2[1].ID != "w3" {
		t.Fatalf("unexpected top2 %+v", top2)
	}
	if eligible[0].ID != "w1" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestPickWorkerPrefersCloserAtEqualLoad(t *testing.T) {
	site := geo.Point{Lat: 12.9716, Lon: 77.5946}
	eligible := []models.Worker{
		{ID: "far", CurrentLatitude: fptr(13.10), CurrentLongitude: fptr(77.70)},
		{ID: "none"},
		{ID: "near", CurrentLatitude: fptr(12.972), CurrentLongitude: fptr(77.595)},
	}
	_, top2 := PickWorker("ticket-9", &site, eligible)
	if top2[0].ID != "near" || top2[1].ID != "far" {
		t.Fatalf("expected near then far, got %s, %s", top2[0].ID, top2[1].ID)
	}
}

func TestPickWorkerSingle(t *testing.T) {
	w, top := PickWorker("ticket-2", nil, []models.Worker{{ID: "only"}})
	if w.ID != "only" || len(top) != 1 {
		t.Fatalf("expected the only worker, got %+v", w)
	}
}
