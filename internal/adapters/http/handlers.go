package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/citydash/transit-api/internal/core/domain"
	"github.com/citydash/transit-api/internal/core/usecases"
)

// SearchStationHandler returns the combined snapshot for one station,
// addressed by ?id= (external id) or ?uid= (vendor uid). Any failure —
// directory not ready, unknown station, upstream error — maps to a 500 with
// a short message; the dashboard treats every search failure the same way.
func SearchStationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		city := c.Params("city")
		q := usecases.StationQuery{
			ExternalID: c.Query("id"),
			UID:        c.Query("uid"),
		}
		if q.ExternalID == "" && q.UID == "" {
			return errInternal(c, "id or uid query parameter is required")
		}

		snap, err := deps.Stations.One(c.UserContext(), city, q)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Warn("station search failed",
				"city", city, "id", q.ExternalID, "uid", q.UID, "error", err)
			return errInternal(c, err.Error())
		}

		return c.JSON(snap)
	}
}

// AllStationsHandler returns every station within rad meters of (lat, lon),
// sorted by ascending distance, each with its live vehicle list.
func AllStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		city := c.Params("city")

		lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
		lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
		rad, radErr := strconv.ParseFloat(c.Query("rad"), 64)
		if latErr != nil || lonErr != nil {
			return errBadRequest(c, "lat and lon must be valid numbers")
		}
		if radErr != nil || rad <= 0 {
			return errBadRequest(c, "rad must be a positive number of meters")
		}

		point := domain.GeoPoint{Lat: lat, Lon: lon}
		snaps, err := deps.Stations.AllNear(c.UserContext(), city, point, rad)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("nearby lookup failed",
				"city", city, "lat", lat, "lon", lon, "rad", rad, "error", err)
			return errInternal(c, err.Error())
		}

		if snaps == nil {
			snaps = []domain.StationSnapshot{}
		}
		return c.JSON(snaps)
	}
}
