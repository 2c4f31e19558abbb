package model

import "time"

// Hospital is the stable identity of a reporting facility, keyed by the
// federal hospital_pk (CMS certification number). Both loaders may write it;
// the most recent load wins.
type Hospital struct {
	PK    string  `json:"hospital_pk"`
	Name  *string `json:"name,omitempty"`
	State *string `json:"state,omitempty"`
}

// Location is the geographic record for a hospital, one per hospital_pk.
// Only the capacity loader writes locations.
type Location struct {
	HospitalPK string   `json:"hospital_pk"`
	Address    *string  `json:"address,omitempty"`
	City       *string  `json:"city,omitempty"`
	Zip        *string  `json:"zip,omitempty"`
	FIPSCode   *string  `json:"fips_code,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// WeeklyReport holds one hospital's 7-day-average bed metrics for one
// collection week. Any metric may be null when the source suppressed or
// omitted the value.
type WeeklyReport struct {
	HospitalPK     string    `json:"hospital_pk"`
	CollectionWeek time.Time `json:"collection_week"`

	AdultBeds             *float64 `json:"adult_beds,omitempty"`
	PediatricBeds         *float64 `json:"pediatric_beds,omitempty"`
	AdultBedsOccupied     *float64 `json:"adult_beds_occupied,omitempty"`
	PediatricBedsOccupied *float64 `json:"pediatric_beds_occupied,omitempty"`
	ICUBeds               *float64 `json:"icu_beds,omitempty"`
	ICUBedsUsed           *float64 `json:"icu_beds_used,omitempty"`
	CovidBedsUsed         *float64 `json:"covid_beds_used,omitempty"`
	CovidICUPatients      *float64 `json:"covid_icu_patients,omitempty"`
}

// QualityRecord is one versioned CMS quality snapshot for a hospital,
// keyed by (hospital_pk, effective_date). Snapshots accumulate; a reload
// of the same effective date replaces that version in place.
type QualityRecord struct {
	HospitalPK        string    `json:"hospital_pk"`
	EffectiveDate     time.Time `json:"effective_date"`
	FacilityType      *string   `json:"facility_type,omitempty"`
	Ownership         *string   `json:"ownership,omitempty"`
	EmergencyServices *bool     `json:"emergency_services,omitempty"`
	Rating            *int      `json:"rating,omitempty"`
}
