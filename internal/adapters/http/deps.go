package http

import (
	"github.com/citydash/transit-api/internal/core/usecases"
)

// Dependencies holds the services needed by HTTP handlers.
type Dependencies struct {
	Stations  *usecases.AggregatorService
	Directory *usecases.DirectoryService
}
