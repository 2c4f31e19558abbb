package model

import "time"

// Report is the full analytical summary for one collection week. Slices are
// empty, and pointer fields nil, where the store holds no contributing data.
type Report struct {
	Week             time.Time               `json:"week"`
	GeneratedAt      time.Time               `json:"generated_at"`
	Records          RecordSummary           `json:"records"`
	BedTrend         []WeeklyBeds            `json:"bed_trend"`
	ByRating         []RatingUtilization     `json:"utilization_by_rating"`
	FewestOpenBeds   []StateOpenBeds         `json:"states_fewest_open_beds"`
	UsageSeries      []BedUsagePoint         `json:"bed_usage_series"`
	NonReporting     []NonReportingHospital  `json:"non_reporting"`
	CovidByState     []StateCovid            `json:"covid_by_state"`
	StateUtilization []StateUtilizationPoint `json:"state_utilization"`
}

// RecordSummary counts the hospitals that reported for the target week,
// overall and per state, with the change from the preceding stored week.
// Previous and Delta are nil when no earlier week exists in the store.
type RecordSummary struct {
	Hospitals int64        `json:"hospitals"`
	Previous  *int64       `json:"previous,omitempty"`
	Delta     *int64       `json:"delta,omitempty"`
	States    []StateCount `json:"states"`
}

// StateCount is the number of reporting hospitals in one state.
type StateCount struct {
	State     string `json:"state"`
	Hospitals int64  `json:"hospitals"`
}

// WeeklyBeds aggregates bed availability and occupancy for one week.
// Utilization is occupied over available, nil when availability sums to zero.
type WeeklyBeds struct {
	Week                  time.Time `json:"week"`
	AdultBeds             *float64  `json:"adult_beds,omitempty"`
	PediatricBeds         *float64  `json:"pediatric_beds,omitempty"`
	AdultBedsOccupied     *float64  `json:"adult_beds_occupied,omitempty"`
	PediatricBedsOccupied *float64  `json:"pediatric_beds_occupied,omitempty"`
	CovidBedsUsed         *float64  `json:"covid_beds_used,omitempty"`
	Utilization           *float64  `json:"utilization,omitempty"`
}

// RatingUtilization is bed utilization for the target week grouped by the
// hospitals' most recent CMS overall rating. A nil Rating is the unrated
// bucket: hospitals with no quality record, or none with a usable rating.
type RatingUtilization struct {
	Rating       *int     `json:"rating,omitempty"`
	Hospitals    int64    `json:"hospitals"`
	PercentInUse *float64 `json:"percent_in_use,omitempty"`
}

// StateOpenBeds is a state's unoccupied bed count for the target week.
type StateOpenBeds struct {
	State    string  `json:"state"`
	OpenBeds float64 `json:"open_beds"`
}

// BedUsagePoint is one week's total occupied beds across all hospitals,
// with the COVID-attributable share broken out.
type BedUsagePoint struct {
	Week          time.Time `json:"week"`
	BedsUsed      *float64  `json:"beds_used,omitempty"`
	CovidBedsUsed *float64  `json:"covid_beds_used,omitempty"`
}

// NonReportingHospital identifies a known hospital with no weekly report for
// the target week. LastReported is nil when it has never reported at all.
type NonReportingHospital struct {
	HospitalPK   string     `json:"hospital_pk"`
	Name         *string    `json:"name,omitempty"`
	City         *string    `json:"city,omitempty"`
	State        *string    `json:"state,omitempty"`
	LastReported *time.Time `json:"last_reported,omitempty"`
}

// StateCovid is a state's cumulative COVID-attributable inpatient bed count
// across every stored week.
type StateCovid struct {
	State         string  `json:"state"`
	CovidBedsUsed float64 `json:"covid_beds_used"`
}

// StateUtilizationPoint is the occupancy percentage for one state in one week.
// Percent is nil where the state reported no available beds that week.
type StateUtilizationPoint struct {
	Week    time.Time `json:"week"`
	State   string    `json:"state"`
	Percent *float64  `json:"percent,omitempty"`
}
