package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/citydash/transit-api/internal/core/domain"
	"github.com/citydash/transit-api/internal/core/ports"
	"github.com/citydash/transit-api/internal/pkg/geospatial"
	"github.com/citydash/transit-api/internal/pkg/metrics"
)

type directoryState int

const (
	stateEmpty directoryState = iota
	stateBuilding
	stateReady
)

// cityDirectory holds one city's station table. The table is replaced
// wholesale on rebuild; readers keep seeing the old table until the swap.
type cityDirectory struct {
	mu         sync.RWMutex
	state      directoryState
	byExternal map[string]domain.Station
	byInternal map[string]domain.Station
	ordered    []domain.Station

	building chan struct{} // non-nil while a build is in flight
	buildErr error         // outcome of the last settled build
}

// DirectoryService maintains the per-city external↔internal station id
// mapping plus the coordinates and names needed for distance filtering
// without a live vendor call.
type DirectoryService struct {
	vendor ports.VendorClient
	cities map[string]*cityDirectory
}

// NewDirectoryService creates a directory covering exactly the configured
// cities. Requests for any other city fail with ErrUnsupportedCity.
func NewDirectoryService(vendor ports.VendorClient, cities []string) *DirectoryService {
	s := &DirectoryService{
		vendor: vendor,
		cities: make(map[string]*cityDirectory, len(cities)),
	}
	for _, city := range cities {
		s.cities[city] = &cityDirectory{}
	}
	return s
}

var _ ports.StationDirectory = (*DirectoryService)(nil)

func (s *DirectoryService) city(city string) (*cityDirectory, error) {
	d, ok := s.cities[city]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedCity, city)
	}
	return d, nil
}

// Cities lists every configured city.
func (s *DirectoryService) Cities() []string {
	out := make([]string, 0, len(s.cities))
	for city := range s.cities {
		out = append(out, city)
	}
	sort.Strings(out)
	return out
}

// Ready reports whether a city's directory has completed a build.
func (s *DirectoryService) Ready(city string) bool {
	d, ok := s.cities[city]
	if !ok {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state == stateReady
}

// Build fetches the vendor's full station enumeration for a city and swaps
// it in atomically. Concurrent Build calls for the same city coalesce into
// one vendor fetch; every caller gets that fetch's outcome.
func (s *DirectoryService) Build(ctx context.Context, city string) error {
	d, err := s.city(city)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if ch := d.building; ch != nil {
		d.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		d.mu.RLock()
		defer d.mu.RUnlock()
		return d.buildErr
	}
	ch := make(chan struct{})
	d.building = ch
	if d.state == stateEmpty {
		d.state = stateBuilding
	}
	d.mu.Unlock()

	stations, err := s.vendor.FetchDirectory(ctx, city)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.building = nil
	defer close(ch)

	if err != nil {
		if d.byExternal == nil {
			d.state = stateEmpty
		}
		d.buildErr = err
		metrics.DirectoryBuilds.WithLabelValues(city, "failure").Inc()
		return err
	}

	byExternal := make(map[string]domain.Station, len(stations))
	byInternal := make(map[string]domain.Station, len(stations))
	for _, st := range stations {
		byExternal[st.ID] = st
		byInternal[st.UID] = st
	}

	d.byExternal = byExternal
	d.byInternal = byInternal
	d.ordered = stations
	d.state = stateReady
	d.buildErr = nil

	metrics.DirectoryBuilds.WithLabelValues(city, "success").Inc()
	metrics.DirectoryStations.WithLabelValues(city).Set(float64(len(stations)))
	slog.Info("station directory built", "city", city, "stations", len(stations))
	return nil
}

// BuildAll builds every configured city concurrently and waits for all of
// them to settle. Per-city failures are joined into the returned error; a
// failed city stays Empty and is retried on demand by EnsureReady.
func (s *DirectoryService) BuildAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for city := range s.cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			if err := s.Build(ctx, city); err != nil {
				slog.Error("directory build failed", "city", city, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(city)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// EnsureReady blocks until the city's directory is usable, triggering an
// on-demand build for a city whose startup build failed or has not run yet.
// A request arriving before the first build waits here instead of erroring.
func (s *DirectoryService) EnsureReady(ctx context.Context, city string) error {
	d, err := s.city(city)
	if err != nil {
		return err
	}

	d.mu.RLock()
	ready := d.state == stateReady
	d.mu.RUnlock()
	if ready {
		return nil
	}

	if err := s.Build(ctx, city); err != nil {
		return err
	}
	return nil
}

// ResolveInternalID maps an external station id to the vendor uid.
func (s *DirectoryService) ResolveInternalID(ctx context.Context, city, externalID string) (string, error) {
	d, err := s.city(city)
	if err != nil {
		return "", err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.state != stateReady {
		return "", domain.ErrDirectoryNotReady
	}
	st, ok := d.byExternal[externalID]
	if !ok {
		return "", &domain.UnknownStationError{City: city, ID: externalID}
	}
	return st.UID, nil
}

// StationByUID returns the directory entry for a vendor uid.
func (s *DirectoryService) StationByUID(ctx context.Context, city, uid string) (*domain.Station, error) {
	d, err := s.city(city)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.state != stateReady {
		return nil, domain.ErrDirectoryNotReady
	}
	st, ok := d.byInternal[uid]
	if !ok {
		return nil, &domain.UnknownStationError{City: city, ID: uid}
	}
	return &st, nil
}

// StationsNear returns the stations within radiusMeters of point, sorted by
// ascending distance. The radius is inclusive. Vehicles are left empty; the
// aggregator fills them in.
func (s *DirectoryService) StationsNear(ctx context.Context, city string, point domain.GeoPoint, radiusMeters float64) ([]domain.StationSnapshot, error) {
	d, err := s.city(city)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	stations := d.ordered
	ready := d.state == stateReady
	d.mu.RUnlock()

	if !ready {
		return nil, domain.ErrDirectoryNotReady
	}

	var nearby []domain.StationSnapshot
	for _, st := range stations {
		dist := geospatial.Haversine(point.Lat, point.Lon, st.Coords.Lat, st.Coords.Lon)
		if dist > radiusMeters {
			continue
		}
		distCopy := dist
		nearby = append(nearby, domain.StationSnapshot{
			Station:  st,
			City:     city,
			Distance: &distCopy,
			Vehicles: []domain.VehicleArrival{},
		})
	}

	sort.Slice(nearby, func(i, j int) bool {
		return *nearby[i].Distance < *nearby[j].Distance
	})
	return nearby, nil
}
