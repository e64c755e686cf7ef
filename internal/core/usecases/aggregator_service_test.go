package usecases_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydash/transit-api/internal/adapters/memcache"
	"github.com/citydash/transit-api/internal/core/domain"
	"github.com/citydash/transit-api/internal/core/usecases"
)

func newAggregator(t *testing.T, vendor *mockVendor, cities []string, vehicleTTL time.Duration) (*usecases.AggregatorService, *usecases.DirectoryService) {
	t.Helper()
	stations := memcache.New[*domain.StationSnapshot]("stations", time.Hour, 0)
	vehicles := memcache.New[[]domain.VehicleArrival]("vehicles", vehicleTTL, 0)
	t.Cleanup(stations.Close)
	t.Cleanup(vehicles.Close)

	dir := usecases.NewDirectoryService(vendor, cities)
	return usecases.NewAggregatorService(dir, vendor, stations, vehicles), dir
}

func arrivals(line string, secs int) []domain.VehicleArrival {
	return []domain.VehicleArrival{{
		LineNumber:      line,
		LineName:        line + " terminal",
		StationName:     "Somewhere",
		SecondsLeft:     secs,
		StationsBetween: 2,
		GarageNo:        "P9" + line,
	}}
}

func TestAggregator_OneCombinesMetadataAndVehicles(t *testing.T) {
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return []domain.Station{stationAtMeters("164", "2655", 0)}, nil
		},
		fetchLiveFn: func(ctx context.Context, city, uid string) (*domain.StationSnapshot, error) {
			require.Equal(t, "2655", uid)
			return &domain.StationSnapshot{Vehicles: arrivals("85", 240)}, nil
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, time.Hour)

	snap, err := agg.One(context.Background(), "bg", usecases.StationQuery{ExternalID: "164"})
	require.NoError(t, err)

	assert.Equal(t, "164", snap.ID)
	assert.Equal(t, "bg", snap.City)
	assert.Equal(t, "Station 164", snap.Name)
	require.Len(t, snap.Vehicles, 1)
	assert.Equal(t, "85", snap.Vehicles[0].LineNumber)
	assert.Equal(t, 240, snap.Vehicles[0].SecondsLeft)
}

func TestAggregator_OneAcceptsUID(t *testing.T) {
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return []domain.Station{stationAtMeters("164", "2655", 0)}, nil
		},
		fetchLiveFn: func(ctx context.Context, city, uid string) (*domain.StationSnapshot, error) {
			return &domain.StationSnapshot{Vehicles: arrivals("85", 240)}, nil
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, time.Hour)

	snap, err := agg.One(context.Background(), "bg", usecases.StationQuery{UID: "2655"})
	require.NoError(t, err)
	assert.Equal(t, "164", snap.ID)

	_, err = agg.One(context.Background(), "bg", usecases.StationQuery{})
	assert.Error(t, err)
}

func TestAggregator_OneSharesColdStartFetch(t *testing.T) {
	var liveCalls atomic.Int32
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return []domain.Station{stationAtMeters("164", "2655", 0)}, nil
		},
		fetchLiveFn: func(ctx context.Context, city, uid string) (*domain.StationSnapshot, error) {
			liveCalls.Add(1)
			return &domain.StationSnapshot{Vehicles: arrivals("85", 240)}, nil
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, time.Hour)

	// Both namespaces miss on the first request; one upstream call serves both.
	_, err := agg.One(context.Background(), "bg", usecases.StationQuery{ExternalID: "164"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), liveCalls.Load())

	// Fully cached: no new upstream call.
	_, err = agg.One(context.Background(), "bg", usecases.StationQuery{ExternalID: "164"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), liveCalls.Load())
}

func TestAggregator_VehicleExpiryKeepsMetadataCached(t *testing.T) {
	var liveCalls atomic.Int32
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return []domain.Station{stationAtMeters("164", "2655", 0)}, nil
		},
		fetchLiveFn: func(ctx context.Context, city, uid string) (*domain.StationSnapshot, error) {
			liveCalls.Add(1)
			return &domain.StationSnapshot{Vehicles: arrivals("85", 240)}, nil
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, 30*time.Millisecond)

	_, err := agg.One(context.Background(), "bg", usecases.StationQuery{ExternalID: "164"})
	require.NoError(t, err)
	require.Equal(t, int32(1), liveCalls.Load())

	time.Sleep(60 * time.Millisecond)

	// Vehicles expired, metadata did not: exactly one refresh call.
	snap, err := agg.One(context.Background(), "bg", usecases.StationQuery{ExternalID: "164"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), liveCalls.Load())
	assert.Len(t, snap.Vehicles, 1)
}

func TestAggregator_OneUnknownStation(t *testing.T) {
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return []domain.Station{stationAtMeters("164", "2655", 0)}, nil
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, time.Hour)

	_, err := agg.One(context.Background(), "bg", usecases.StationQuery{ExternalID: "999"})
	var use *domain.UnknownStationError
	require.ErrorAs(t, err, &use)
}

func TestAggregator_AllNearFiltersAndSorts(t *testing.T) {
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return []domain.Station{
				stationAtMeters("3", "u3", 1200),
				stationAtMeters("1", "u1", 100),
				stationAtMeters("2", "u2", 600),
			}, nil
		},
		fetchLiveFn: func(ctx context.Context, city, uid string) (*domain.StationSnapshot, error) {
			return &domain.StationSnapshot{Vehicles: arrivals("85", 120)}, nil
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, time.Hour)

	point := domain.GeoPoint{Lat: baseLat, Lon: baseLon}
	snaps, err := agg.AllNear(context.Background(), "bg", point, 1000)
	require.NoError(t, err)

	require.Len(t, snaps, 2)
	assert.Equal(t, "1", snaps[0].ID)
	assert.Equal(t, "2", snaps[1].ID)
	assert.Less(t, *snaps[0].Distance, *snaps[1].Distance)
	for _, s := range snaps {
		assert.Len(t, s.Vehicles, 1)
	}
}

func TestAggregator_AllNearToleratesPartialFailure(t *testing.T) {
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return []domain.Station{
				stationAtMeters("1", "u1", 100),
				stationAtMeters("2", "u2", 200),
				stationAtMeters("3", "u3", 300),
			}, nil
		},
		fetchLiveFn: func(ctx context.Context, city, uid string) (*domain.StationSnapshot, error) {
			if uid == "u2" {
				return nil, &domain.UpstreamError{City: city, Op: "live", Err: errors.New("timeout")}
			}
			return &domain.StationSnapshot{Vehicles: arrivals("31", 90)}, nil
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, time.Hour)

	point := domain.GeoPoint{Lat: baseLat, Lon: baseLon}
	snaps, err := agg.AllNear(context.Background(), "bg", point, 1000)
	require.NoError(t, err, "one failed station must not fail the request")

	require.Len(t, snaps, 3)
	assert.Len(t, snaps[0].Vehicles, 1)
	assert.Empty(t, snaps[1].Vehicles, "failed station carries an empty vehicle list")
	assert.NotNil(t, snaps[1].Vehicles)
	assert.Len(t, snaps[2].Vehicles, 1)
}

func TestAggregator_AllNearReusesVehicleCache(t *testing.T) {
	var liveCalls atomic.Int32
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return []domain.Station{
				stationAtMeters("1", "u1", 100),
				stationAtMeters("2", "u2", 200),
			}, nil
		},
		fetchLiveFn: func(ctx context.Context, city, uid string) (*domain.StationSnapshot, error) {
			liveCalls.Add(1)
			return &domain.StationSnapshot{Vehicles: arrivals("85", 120)}, nil
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, time.Hour)

	point := domain.GeoPoint{Lat: baseLat, Lon: baseLon}
	_, err := agg.AllNear(context.Background(), "bg", point, 1000)
	require.NoError(t, err)
	require.Equal(t, int32(2), liveCalls.Load())

	_, err = agg.AllNear(context.Background(), "bg", point, 1000)
	require.NoError(t, err)
	assert.Equal(t, int32(2), liveCalls.Load(), "second pass is served from cache")
}

func TestAggregator_EnsureReadyFailurePropagates(t *testing.T) {
	vendor := &mockVendor{
		fetchDirectoryFn: func(ctx context.Context, city string) ([]domain.Station, error) {
			return nil, &domain.UpstreamError{City: city, Op: "directory", Err: errors.New("down")}
		},
	}
	agg, _ := newAggregator(t, vendor, []string{"bg"}, time.Hour)

	var ue *domain.UpstreamError
	_, err := agg.AllNear(context.Background(), "bg", domain.GeoPoint{Lat: baseLat, Lon: baseLon}, 500)
	require.ErrorAs(t, err, &ue)

	_, err = agg.One(context.Background(), "bg", usecases.StationQuery{ExternalID: "1"})
	require.ErrorAs(t, err, &ue)
}
