package domain

// GeoPoint represents a geographic coordinate (WGS 84).
// Latitude/longitude range is not enforced: out-of-range values from the
// vendor are a data-quality condition, not a fatal one.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Station is one directory entry for a city. ID is the stable external
// identifier exposed to clients and used in cache keys; UID is the vendor's
// opaque identifier needed for live-data queries and is never serialized.
type Station struct {
	ID     string   `json:"stopId"`
	UID    string   `json:"-"`
	Name   string   `json:"name"`
	Coords GeoPoint `json:"coords"`
}

// VehicleArrival is one upcoming vehicle at a station. It only exists inside
// a snapshot or a cache entry and has no lifecycle of its own.
type VehicleArrival struct {
	LineNumber      string    `json:"lineNumber"`
	LineName        string    `json:"lineName,omitempty"`
	StationName     string    `json:"stationName,omitempty"`
	SecondsLeft     int       `json:"secondsLeft"`
	StationsBetween int       `json:"stationsBetween"`
	GarageNo        string    `json:"garageNo,omitempty"`
	Coords          *GeoPoint `json:"coords,omitempty"`
}

// StationSnapshot is the unit returned to API callers: station metadata plus
// the current vehicle arrivals. Vehicles is empty when the station has no
// live data or the vendor marks it coordinates-only.
type StationSnapshot struct {
	Station
	City     string           `json:"city"`
	Distance *float64         `json:"distance,omitempty"` // meters, set on radius queries
	Vehicles []VehicleArrival `json:"vehicles"`
}
