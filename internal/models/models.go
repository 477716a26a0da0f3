// Package models holds the plain JSON-tagged data shapes shared across the
// ingest, reconcile, estimate, and API packages.
package models

// World is an immutable tuple populated once from game data.
type World struct {
	WorldID        uint32 `json:"world_id"`
	Name           string `json:"name"`
	DatacenterID   uint32 `json:"datacenter_id"`
	DatacenterName string `json:"datacenter_name"`
}

// District is immutable; there are five known districts.
type District struct {
	DistrictID uint32 `json:"district_id"`
	Name       string `json:"name"`
	LandSetID  uint32 `json:"land_set_id"`
}

// PlotInfo is immutable per (district, plot_number).
type PlotInfo struct {
	DistrictID uint32 `json:"district_id"`
	PlotNumber uint16 `json:"plot_number"`
	HouseSize  int    `json:"house_size"` // 0, 1, or 2
	BasePrice  int64  `json:"base_price"`
}

// PlotLocation identifies a physical plot.
type PlotLocation struct {
	WorldID    uint32 `json:"world_id"`
	DistrictID uint32 `json:"district_id"`
	WardNumber uint16 `json:"ward_number"`
	PlotNumber uint16 `json:"plot_number"`
}

// PurchaseSystem is a bitflag set over {Lottery, FreeCompany, Individual}.
// Absence of Lottery implies first-come-first-served.
type PurchaseSystem uint8

const (
	PurchaseSystemLottery     PurchaseSystem = 1 << 0
	PurchaseSystemFreeCompany PurchaseSystem = 1 << 1
	PurchaseSystemIndividual  PurchaseSystem = 1 << 2
)

func (p PurchaseSystem) Has(flag PurchaseSystem) bool { return p&flag != 0 }

// LottoPhase is the lifecycle state of a lottery cycle.
type LottoPhase string

const (
	LottoPhaseAvailable   LottoPhase = "Available"
	LottoPhaseResults     LottoPhase = "Results"
	LottoPhaseUnavailable LottoPhase = "Unavailable"
)

// HousingFlags is the raw bitfield carried on HOUSING_WARD_INFO entries.
type HousingFlags uint8

const (
	HousingFlagPlotOwned        HousingFlags = 1 << 0
	HousingFlagVisitorsAllowed  HousingFlags = 1 << 1
	HousingFlagHasSearchComment HousingFlags = 1 << 2
	HousingFlagHouseBuilt       HousingFlags = 1 << 3
	HousingFlagOwnedByFC        HousingFlags = 1 << 4
)

func (f HousingFlags) IsOwned() bool { return f&HousingFlagPlotOwned != 0 }

// PlotState is one row per distinguishable epoch of a plot (see invariants
// in the data model: non-overlapping, monotonically increasing intervals).
type PlotState struct {
	ID uint64 `json:"id"`

	WorldID    uint32 `json:"world_id"`
	DistrictID uint32 `json:"district_id"`
	WardNumber uint16 `json:"ward_number"`
	PlotNumber uint16 `json:"plot_number"`

	FirstSeen float64 `json:"first_seen"`
	LastSeen  float64 `json:"last_seen"`

	IsOwned       bool    `json:"is_owned"`
	OwnerName     *string `json:"owner_name,omitempty"`
	LastSeenPrice *int64  `json:"last_seen_price,omitempty"`

	PurchaseSystem PurchaseSystem `json:"purchase_system"`

	LottoEntries    *int        `json:"lotto_entries,omitempty"`
	LottoPhase      *LottoPhase `json:"lotto_phase,omitempty"`
	LottoPhaseUntil *float64    `json:"lotto_phase_until,omitempty"`
}

// Location extracts this state's plot identity.
func (s *PlotState) Location() PlotLocation {
	return PlotLocation{
		WorldID:    s.WorldID,
		DistrictID: s.DistrictID,
		WardNumber: s.WardNumber,
		PlotNumber: s.PlotNumber,
	}
}

// EventType discriminates the two observation shapes ingest accepts.
type EventType string

const (
	EventTypeHousingWardInfo EventType = "HOUSING_WARD_INFO"
	EventTypeLotteryInfo     EventType = "LOTTERY_INFO"
)

// LandIdent identifies the ward a HOUSING_WARD_INFO batch describes.
type LandIdent struct {
	WorldID         uint32 `json:"WorldId"`
	TerritoryTypeID uint32 `json:"TerritoryTypeId"`
	WardNumber      uint16 `json:"WardNumber"`
	LandID          uint16 `json:"LandId"`
}

// HouseInfoEntry is one of the 60 plot entries in a HOUSING_WARD_INFO batch.
type HouseInfoEntry struct {
	HousePrice      int64        `json:"HousePrice"`
	InfoFlags       HousingFlags `json:"InfoFlags"`
	HouseAppeals    [3]int       `json:"HouseAppeals"`
	EstateOwnerName string       `json:"EstateOwnerName"`
}

// HousingWardInfo carries 60 plot entries for one ward.
type HousingWardInfo struct {
	EventType        EventType        `json:"event_type"`
	ClientTimestamp  float64          `json:"client_timestamp"`
	ServerTimestamp  float64          `json:"server_timestamp"`
	LandIdent        LandIdent        `json:"LandIdent"`
	HouseInfoEntries []HouseInfoEntry `json:"HouseInfoEntries"`
	PurchaseType     int              `json:"PurchaseType"` // 0,1,2; 1=Lottery
	TenantType       int              `json:"TenantType"`   // 1=FreeCompany, 2=Personal
}

// AvailabilityType mirrors the client's lottery phase enum.
type AvailabilityType int

const (
	AvailabilityAvailable   AvailabilityType = 1
	AvailabilityResults     AvailabilityType = 2
	AvailabilityUnavailable AvailabilityType = 3
)

// LotteryInfo carries one plot's lottery counters.
type LotteryInfo struct {
	EventType        EventType        `json:"event_type"`
	ClientTimestamp   float64          `json:"client_timestamp"`
	WorldID          uint32           `json:"WorldId"`
	DistrictID       uint32           `json:"DistrictId"`
	WardID           uint16           `json:"WardId"`
	PlotID           uint16           `json:"PlotId"`
	PurchaseType     int              `json:"PurchaseType"`
	TenantType       int              `json:"TenantType"`
	AvailabilityType AvailabilityType `json:"AvailabilityType"`
	PhaseEndsAt      float64          `json:"PhaseEndsAt"`
	EntryCount       int              `json:"EntryCount"`
}

// Observation is the normalized, event-type-independent shape the
// reconciler consumes, derived from either a HousingWardInfo plot entry or
// a LotteryInfo observation.
type Observation struct {
	Location  PlotLocation
	Timestamp float64

	IsOwned        bool
	OwnerName      *string
	Price          *int64
	PurchaseSystem PurchaseSystem

	LottoEntries    *int
	LottoPhase      *LottoPhase
	LottoPhaseUntil *float64

	// IsPlacardGrade is true when the observation carries full lottery
	// fields (a LOTTERY_INFO observation); false for ward-sweep
	// (aetheryte-grade) observations that only carry purchase-system data.
	IsPlacardGrade bool
}

// Event is an append-only audit row. Never read by the core; purely
// forensic.
type Event struct {
	ID         uint64  `json:"id"`
	SweeperID  *int64  `json:"sweeper_id,omitempty"`
	Timestamp  float64 `json:"timestamp"`
	EventType  string  `json:"event_type"`
	RawPayload string  `json:"raw_payload"`
}

// Sweeper is a client identity.
type Sweeper struct {
	SweeperID int64   `json:"sweeper_id"`
	Name      string  `json:"name"`
	WorldID   uint32  `json:"world_id"`
	LastSeen  float64 `json:"last_seen"`
}

// Broadcast message payloads (§4.3.2, §6).

// WSMessage is the envelope published on ws_messages: {type, data}.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	WSTypePlotOpen   = "plot_open"
	WSTypePlotSold   = "plot_sold"
	WSTypePlotUpdate = "plot_update"
)

// OpenPlotDetail is the payload for a plot_open broadcast and for the
// open-plots list in a district-detail read projection.
type OpenPlotDetail struct {
	WorldID        uint32      `json:"world_id"`
	DistrictID     uint32      `json:"district_id"`
	WardNumber     uint16      `json:"ward_number"`
	PlotNumber     uint16      `json:"plot_number"`
	Size           int         `json:"size"`
	KnownPrice     int64       `json:"known_price"`
	LastUpdated    float64     `json:"last_updated_time"`
	EstTimeOpenMin float64     `json:"est_time_open_min"`
	EstTimeOpenMax float64     `json:"est_time_open_max"`
	LottoEntries   int         `json:"lotto_entries"`
	LottoPhase     *LottoPhase `json:"lotto_phase,omitempty"`
}

// SoldPlotDetail is the payload for a plot_sold broadcast.
type SoldPlotDetail struct {
	WorldID        uint32  `json:"world_id"`
	DistrictID     uint32  `json:"district_id"`
	WardNumber     uint16  `json:"ward_number"`
	PlotNumber     uint16  `json:"plot_number"`
	Size           int     `json:"size"`
	LastUpdated    float64 `json:"last_updated_time"`
	EstTimeSoldMin float64 `json:"est_time_sold_min"`
	EstTimeSoldMax float64 `json:"est_time_sold_max"`
}

// PlotUpdateDetail is the payload for a plot_update broadcast: the plot
// stayed open and its lottery fields changed, either through a new state
// or through an in-place extend carrying lottery data.
type PlotUpdateDetail struct {
	WorldID            uint32      `json:"world_id"`
	DistrictID         uint32      `json:"district_id"`
	WardNumber         uint16      `json:"ward_number"`
	PlotNumber         uint16      `json:"plot_number"`
	LottoEntries       *int        `json:"lotto_entries,omitempty"`
	LottoPhase         *LottoPhase `json:"lotto_phase,omitempty"`
	LottoPhaseUntil    *float64    `json:"lotto_phase_until,omitempty"`
	PreviousLottoPhase *LottoPhase `json:"previous_lotto_phase,omitempty"`
}

// WorldSummary is the /worlds list entry.
type WorldSummary struct {
	WorldID        uint32 `json:"world_id"`
	Name           string `json:"name"`
	DatacenterID   uint32 `json:"datacenter_id"`
	DatacenterName string `json:"datacenter_name"`
}

// WorldDetail is the /worlds/{wid} per-district rollup.
type WorldDetail struct {
	WorldID   uint32            `json:"world_id"`
	Name      string            `json:"name"`
	Districts []DistrictSummary `json:"districts"`
}

// DistrictSummary is one district's rollup within a WorldDetail.
type DistrictSummary struct {
	DistrictID     uint32  `json:"district_id"`
	Name           string  `json:"name"`
	NumOpenPlots   int     `json:"num_open_plots"`
	OldestPlotTime float64 `json:"oldest_plot_time"`
}

// DistrictDetail is the /worlds/{wid}/{did} full open-plot listing.
type DistrictDetail struct {
	DistrictID     uint32           `json:"district_id"`
	Name           string           `json:"name"`
	NumOpenPlots   int              `json:"num_open_plots"`
	OldestPlotTime float64          `json:"oldest_plot_time"`
	OpenPlots      []OpenPlotDetail `json:"open_plots"`
}
