// Package registry consumes the event registry service.
//
// The registry is the source of truth for event metadata, ticket tiers,
// milestone plans, and live inventory counts. This package only reads
// event state and mutates inventory; event/tier CRUD belongs to the
// registry service itself.
package registry

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEventNotFound = errors.New("registry: event not found")
	ErrTierNotFound  = errors.New("registry: ticket tier not found")
	ErrUnavailable   = errors.New("registry: service unavailable")
)

// Milestone gates how much of lifetime revenue an organizer may withdraw.
type Milestone struct {
	SalesThreshold int64  `json:"salesThreshold"` // cumulative units sold
	ReleasePercent uint32 `json:"releasePercent"` // basis points, 0-10000
}

// TicketTier is a priced ticket category within an event.
type TicketTier struct {
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	TierLimit   int64  `json:"tierLimit"`
	CurrentSold int64  `json:"currentSold"`
	Refundable  bool   `json:"refundable"`
}

// EventInfo is the registry's view of an event.
type EventInfo struct {
	EventID          string                `json:"eventId"`
	OrganizerAddress string                `json:"organizerAddress"`
	PaymentAddress   string                `json:"paymentAddress"`
	PlatformFeeBps   uint32                `json:"platformFeeBps"`
	Active           bool                  `json:"active"`
	CreatedAt        time.Time             `json:"createdAt"`
	MetadataCID      string                `json:"metadataCid,omitempty"`
	MaxSupply        int64                 `json:"maxSupply"`
	CurrentSupply    int64                 `json:"currentSupply"`
	MilestonePlan    []Milestone           `json:"milestonePlan,omitempty"` // nil means fully unlocked
	Tiers            map[string]TicketTier `json:"tiers"`
}

// Tier returns the named tier or ErrTierNotFound.
func (e *EventInfo) Tier(tierID string) (TicketTier, error) {
	tier, ok := e.Tiers[tierID]
	if !ok {
		return TicketTier{}, ErrTierNotFound
	}
	return tier, nil
}

// PaymentInfo is the subset of event state needed to route a payment.
type PaymentInfo struct {
	PaymentAddress string `json:"paymentAddress"`
	PlatformFeeBps uint32 `json:"platformFeeBps"`
}

// Client is the consumed registry interface.
//
// GetEvent returns ErrEventNotFound for unknown events. Inventory
// mutations are separate calls that can fail independently of any local
// ledger write; callers own that reconciliation.
type Client interface {
	GetEvent(ctx context.Context, eventID string) (*EventInfo, error)
	GetEventPaymentInfo(ctx context.Context, eventID string) (*PaymentInfo, error)
	ListByOrganizer(ctx context.Context, organizerAddr string) ([]*EventInfo, error)
	IncrementInventory(ctx context.Context, eventID, tierID string, quantity uint32) error
	DecrementInventory(ctx context.Context, eventID, tierID string) error
}
