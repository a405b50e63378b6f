// Package escrow keeps the settlement ledger of event balances and
// runs milestone-gated withdrawals.
//
// Every confirmed payment credits an event's balance: the organizer
// share accrues to organizer_amount, the platform cut to platform_fee.
// Organizers draw down against their share as sales milestones unlock;
// total_withdrawn records the lifetime amount already paid out.
package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/agoratix/ticketpay/internal/registry"
)

var (
	ErrNegativeBalance = errors.New("escrow: operation would make balance negative")
	ErrUnauthorized    = errors.New("escrow: caller not authorized")
)

// EventBalance is the escrow ledger entry for one event.
type EventBalance struct {
	EventID         string    `json:"eventId"`
	OrganizerAmount int64     `json:"organizerAmount"`
	PlatformFee     int64     `json:"platformFee"`
	TotalWithdrawn  int64     `json:"totalWithdrawn"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TotalRevenue is the organizer's lifetime share: what is still held
// plus what has already been withdrawn. Milestone thresholds compare
// against this value.
func (b *EventBalance) TotalRevenue() int64 {
	return b.OrganizerAmount + b.TotalWithdrawn
}

// OrganizerEvent pairs an organizer's event with its escrow balance.
type OrganizerEvent struct {
	Event   *registry.EventInfo `json:"event"`
	Balance *EventBalance       `json:"balance"`
}

// WithdrawalResult describes a completed withdrawal.
type WithdrawalResult struct {
	EventID         string `json:"eventId"`
	Amount          int64  `json:"amount"`
	Recipient       string `json:"recipient"`
	TransactionHash string `json:"transactionHash,omitempty"`
	ReleaseBps      uint32 `json:"releaseBps,omitempty"`
}

// Store persists event balances.
//
// Get returns a zero balance for unknown events; the ledger treats
// "never paid" and "fully drained" identically. Mutations are atomic
// per event and fail with ErrNegativeBalance rather than letting any
// component go below zero.
type Store interface {
	Get(ctx context.Context, eventID string) (*EventBalance, error)
	Credit(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error
	DebitOrganizer(ctx context.Context, eventID string, amount int64) error
	DebitPlatform(ctx context.Context, eventID string, amount int64) error
	Reverse(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error
	SumAll(ctx context.Context) (int64, error)
	ListBalances(ctx context.Context, limit int) ([]*EventBalance, error)
}
