// Package publication controls which computed periods are visible to external
// readers and fans the visibility changes out to caches and reports.
package publication

import (
	"context"

	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/events"
	"financial-diagnostics/internal/logging"
)

// Store flips the publication flag of one computed row
type Store interface {
	SetPublished(ctx context.Context, periodID string, published bool) (*database.PublicationChange, error)
}

// Gate is the only writer of the publication flag
type Gate struct {
	store Store
	bus   *events.EventBus
}

// NewGate creates a publication gate. bus may be nil.
func NewGate(store Store, bus *events.EventBus) *Gate {
	return &Gate{store: store, bus: bus}
}

// SetPublished sets the flag of one period. Metric values are never touched.
// Events fire only when the flag actually changed.
func (g *Gate) SetPublished(ctx context.Context, periodID string, published bool) (*database.PublicationChange, error) {
	log := logging.PublicationContext(periodID, published)

	change, err := g.store.SetPublished(ctx, periodID, published)
	if err != nil {
		log.WithError(err).Warn("Publication change failed")
		return nil, err
	}

	if !change.Changed() {
		log.Debug("Publication flag unchanged")
		return change, nil
	}
	log.Info("Publication flag changed", "company_id", change.CompanyID, "previous", change.Previous)

	if g.bus != nil {
		if change.Current {
			g.bus.PublishMetricsPublished(change.CompanyID, change.IsTaxRecord, change.PeriodID)
		} else {
			g.bus.PublishMetricsUnpublished(change.CompanyID, change.IsTaxRecord, change.PeriodID)
		}
	}
	return change, nil
}
