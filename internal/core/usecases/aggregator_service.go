package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/citydash/transit-api/internal/core/domain"
	"github.com/citydash/transit-api/internal/core/ports"
)

// maxLiveFetches bounds the per-request fan-out so a wide radius cannot
// open an unbounded number of upstream connections at once.
const maxLiveFetches = 16

// StationQuery addresses one station either by its stable external id or by
// the vendor's internal uid.
type StationQuery struct {
	ExternalID string
	UID        string
}

// AggregatorService answers "what stations and live arrivals are near this
// point" for one city, reading through the response caches.
type AggregatorService struct {
	directory ports.StationDirectory
	vendor    ports.VendorClient
	stations  ports.SnapshotCache
	vehicles  ports.VehicleCache
}

// NewAggregatorService creates a new AggregatorService.
func NewAggregatorService(
	directory ports.StationDirectory,
	vendor ports.VendorClient,
	stations ports.SnapshotCache,
	vehicles ports.VehicleCache,
) *AggregatorService {
	return &AggregatorService{
		directory: directory,
		vendor:    vendor,
		stations:  stations,
		vehicles:  vehicles,
	}
}

// cacheKey builds the shared key for both cache namespaces. Only the stable
// external id ever reaches a cache key.
func cacheKey(city, externalID string) string {
	return city + ":" + externalID
}

// One returns the combined snapshot for a single station: metadata through
// the long-TTL cache, vehicles through the short-TTL cache.
func (s *AggregatorService) One(ctx context.Context, city string, q StationQuery) (*domain.StationSnapshot, error) {
	if err := s.directory.EnsureReady(ctx, city); err != nil {
		return nil, err
	}

	var (
		station *domain.Station
		err     error
	)
	switch {
	case q.UID != "":
		station, err = s.directory.StationByUID(ctx, city, q.UID)
	case q.ExternalID != "":
		var uid string
		uid, err = s.directory.ResolveInternalID(ctx, city, q.ExternalID)
		if err == nil {
			station, err = s.directory.StationByUID(ctx, city, uid)
		}
	default:
		return nil, fmt.Errorf("station query requires an id or uid")
	}
	if err != nil {
		return nil, err
	}

	// Both namespaces may miss at once; share a single upstream call
	// between them within this request.
	var fresh *domain.StationSnapshot
	fetchLive := func(ctx context.Context) (*domain.StationSnapshot, error) {
		if fresh != nil {
			return fresh, nil
		}
		snap, err := s.vendor.FetchStationLive(ctx, city, station.UID)
		if err != nil {
			return nil, err
		}
		fresh = snap
		return snap, nil
	}

	key := cacheKey(city, station.ID)

	meta, err := s.stations.GetOrFetch(ctx, key, func(ctx context.Context) (*domain.StationSnapshot, error) {
		snap, err := fetchLive(ctx)
		if err != nil {
			return nil, err
		}
		// Metadata namespace holds the snapshot without its volatile part.
		// The directory is authoritative for ids and coordinates.
		meta := *snap
		meta.Station = *station
		meta.City = city
		meta.Vehicles = nil
		return &meta, nil
	})
	if err != nil {
		return nil, err
	}

	vehicles, err := s.vehicles.GetOrFetch(ctx, key, func(ctx context.Context) ([]domain.VehicleArrival, error) {
		snap, err := fetchLive(ctx)
		if err != nil {
			return nil, err
		}
		return snap.Vehicles, nil
	})
	if err != nil {
		return nil, err
	}

	out := *meta
	if vehicles == nil {
		vehicles = []domain.VehicleArrival{}
	}
	out.Vehicles = vehicles
	return &out, nil
}

// AllNear returns a snapshot for every station within radiusMeters of
// point, in ascending distance order. Live fetches fan out concurrently and
// the call waits for all of them to settle; a station whose live fetch
// fails is returned with an empty vehicle list rather than failing the
// request.
func (s *AggregatorService) AllNear(ctx context.Context, city string, point domain.GeoPoint, radiusMeters float64) ([]domain.StationSnapshot, error) {
	if err := s.directory.EnsureReady(ctx, city); err != nil {
		return nil, err
	}

	candidates, err := s.directory.StationsNear(ctx, city, point, radiusMeters)
	if err != nil {
		return nil, err
	}

	results := make([]domain.StationSnapshot, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxLiveFetches)

	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			vehicles, err := s.vehicles.GetOrFetch(gctx, cacheKey(city, cand.ID),
				func(ctx context.Context) ([]domain.VehicleArrival, error) {
					snap, err := s.vendor.FetchStationLive(ctx, city, cand.UID)
					if err != nil {
						return nil, err
					}
					return snap.Vehicles, nil
				})
			if err != nil {
				slog.Warn("live fetch failed, returning station without vehicles",
					"city", city, "station", cand.ID, "error", err)
				vehicles = []domain.VehicleArrival{}
			}
			if vehicles == nil {
				vehicles = []domain.VehicleArrival{}
			}

			snap := cand
			snap.Vehicles = vehicles
			results[i] = snap
			// Individual failures never fail the group: the join waits
			// for every station to settle.
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}
