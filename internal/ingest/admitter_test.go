package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"plotsweep/internal/models"
)

func TestDedupKeyStableAndNamespaced(t *testing.T) {
	loc := models.PlotLocation{WorldID: 1, DistrictID: 2, WardNumber: 3, PlotNumber: 4}

	k1 := DedupKey(loc, "Someone", "event.wardinfo.plot")
	k2 := DedupKey(loc, "Someone", "event.wardinfo.plot")
	if k1 != k2 {
		t.Fatalf("DedupKey not stable: %s != %s", k1, k2)
	}

	k3 := DedupKey(loc, "Someone", "event.lotteryinfo.plot")
	if k1 == k3 {
		t.Fatal("DedupKey did not vary by namespace")
	}

	k4 := DedupKey(loc, "SomeoneElse", "event.wardinfo.plot")
	if k1 == k4 {
		t.Fatal("DedupKey did not vary by owner name")
	}
}

func TestDedupKeyTruncatesLongOwnerNames(t *testing.T) {
	loc := models.PlotLocation{WorldID: 1, DistrictID: 1, WardNumber: 1, PlotNumber: 1}
	long := "ThisNameIsDefinitelyLongerThanThirtyTwoBytesForSure"
	// Should not panic despite exceeding the 32-byte pad window.
	_ = DedupKey(loc, long, "event.wardinfo.plot")
	if DedupKey(loc, long, "event.wardinfo.plot") != DedupKey(loc, long[:32], "event.wardinfo.plot") {
		t.Fatal("DedupKey should ignore owner-name bytes past the 32-byte pad window")
	}
}

func TestCheckTimestampBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	withinBound := float64(now.Add(9 * time.Second).Unix())
	if err := checkTimestamp(withinBound, now); err != nil {
		t.Fatalf("expected acceptance at +9s, got %v", err)
	}

	beyondBound := float64(now.Add(11 * time.Second).Unix())
	if err := checkTimestamp(beyondBound, now); err == nil {
		t.Fatal("expected rejection at +11s")
	}
}

func TestCheckTimestampBoundaryFractionalSeconds(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	nowSeconds := float64(now.Unix())

	justAccepted := nowSeconds + 9.999
	if err := checkTimestamp(justAccepted, now); err != nil {
		t.Fatalf("expected acceptance at +9.999s, got %v", err)
	}

	justRejected := nowSeconds + 10.001
	if err := checkTimestamp(justRejected, now); err == nil {
		t.Fatal("expected rejection at +10.001s")
	}
}

func TestWardPlotObservationsRejectsZeroWorld(t *testing.T) {
	raw, _ := json.Marshal(models.HousingWardInfo{
		EventType:       models.EventTypeHousingWardInfo,
		ServerTimestamp: 1000,
		LandIdent:       models.LandIdent{WorldID: 0, TerritoryTypeID: 5, WardNumber: 1},
	})
	if _, err := WardPlotObservations(raw, time.Unix(1000, 0)); err == nil {
		t.Fatal("expected rejection for world_id == 0")
	}
}

func TestWardPlotObservationsExpandsEntries(t *testing.T) {
	raw, _ := json.Marshal(models.HousingWardInfo{
		EventType:       models.EventTypeHousingWardInfo,
		ServerTimestamp: 1000,
		LandIdent:       models.LandIdent{WorldID: 1, TerritoryTypeID: 5, WardNumber: 2},
		HouseInfoEntries: []models.HouseInfoEntry{
			{InfoFlags: 0},
			{InfoFlags: models.HousingFlagPlotOwned, EstateOwnerName: "Someone Person", HousePrice: 5000000},
		},
		PurchaseType: 1,
		TenantType:   2,
	})

	obs, err := WardPlotObservations(raw, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("WardPlotObservations: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("len(obs) = %d, want 2", len(obs))
	}
	if obs[0].IsOwned {
		t.Fatal("entry 0 should be unowned")
	}
	if !obs[1].IsOwned {
		t.Fatal("entry 1 should be owned")
	}
	if obs[1].OwnerName == nil || *obs[1].OwnerName != "Someone Person" {
		t.Fatalf("unexpected owner name: %+v", obs[1].OwnerName)
	}
	if !obs[1].PurchaseSystem.Has(models.PurchaseSystemLottery) {
		t.Fatal("expected lottery flag set from PurchaseType=1")
	}
	if !obs[1].PurchaseSystem.Has(models.PurchaseSystemIndividual) {
		t.Fatal("expected individual flag set from TenantType=2")
	}
}

func TestAdmitBatchRejectsMalformedElements(t *testing.T) {
	a := &Admitter{now: func() time.Time { return time.Unix(1000, 0) }}
	body := []byte(`[{"event_type": "NOT_A_REAL_TYPE"}, "not-even-an-object"]`)

	result, err := a.AdmitBatch(nil, nil, body)
	if err != nil {
		t.Fatalf("AdmitBatch: %v", err)
	}
	if result.Accepted != 0 {
		t.Fatalf("Accepted = %d, want 0", result.Accepted)
	}
	if result.Rejected != 2 {
		t.Fatalf("Rejected = %d, want 2", result.Rejected)
	}
}
