package ports

import (
	"context"

	"github.com/citydash/transit-api/internal/core/domain"
)

// VendorClient talks to one upstream transit API per city, hiding the
// v1/v2 wire-protocol differences.
type VendorClient interface {
	// FetchDirectory enumerates every station the vendor knows for a city.
	FetchDirectory(ctx context.Context, city string) ([]domain.Station, error)

	// FetchStationLive returns the current snapshot for one station,
	// addressed by the vendor's internal uid.
	FetchStationLive(ctx context.Context, city, uid string) (*domain.StationSnapshot, error)
}

// StationDirectory maintains the per-city external↔internal id mapping and
// the static metadata needed for distance filtering.
type StationDirectory interface {
	Build(ctx context.Context, city string) error
	EnsureReady(ctx context.Context, city string) error
	ResolveInternalID(ctx context.Context, city, externalID string) (string, error)
	StationByUID(ctx context.Context, city, uid string) (*domain.Station, error)
	StationsNear(ctx context.Context, city string, point domain.GeoPoint, radiusMeters float64) ([]domain.StationSnapshot, error)
}

// SnapshotCache is a read-through cache over station metadata snapshots.
type SnapshotCache interface {
	GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (*domain.StationSnapshot, error)) (*domain.StationSnapshot, error)
}

// VehicleCache is a read-through cache over live vehicle lists.
type VehicleCache interface {
	GetOrFetch(ctx context.Context, key string, fetch func(context.Context) ([]domain.VehicleArrival, error)) ([]domain.VehicleArrival, error)
}
