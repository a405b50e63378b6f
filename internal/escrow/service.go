package escrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/agoratix/ticketpay/internal/metrics"
	"github.com/agoratix/ticketpay/internal/money"
	"github.com/agoratix/ticketpay/internal/platform"
	"github.com/agoratix/ticketpay/internal/registry"
	"github.com/agoratix/ticketpay/internal/syncutil"
	"github.com/agoratix/ticketpay/internal/traces"

	"go.opentelemetry.io/otel/codes"
)

// SettingsProvider supplies settlement configuration to the engine.
type SettingsProvider interface {
	RequireInitialized(ctx context.Context) (*platform.Settings, error)
	IsTokenAllowed(ctx context.Context, tokenAddr string) (bool, error)
}

// TokenTransferrer pays out from the holding wallet.
type TokenTransferrer interface {
	Transfer(ctx context.Context, tokenAddr, to string, amount int64) (string, error)
}

// Service implements balance queries and milestone-gated withdrawals.
type Service struct {
	store    Store
	platform SettingsProvider
	registry registry.Client
	token    TokenTransferrer
	locks    *syncutil.ContextShardedMutex // per-event locks to prevent double withdrawal
}

// NewService creates a new escrow service.
func NewService(store Store, platformSvc SettingsProvider, reg registry.Client, token TokenTransferrer) *Service {
	return &Service{
		store:    store,
		platform: platformSvc,
		registry: reg,
		token:    token,
		locks:    syncutil.NewContextShardedMutex(),
	}
}

// Balance returns the event's escrow balance, zero for unknown events.
func (s *Service) Balance(ctx context.Context, eventID string) (*EventBalance, error) {
	return s.store.Get(ctx, eventID)
}

// OrganizerEvents lists every event the organizer owns alongside its
// escrow balance. Events that never took a payment carry a zero
// balance.
func (s *Service) OrganizerEvents(ctx context.Context, organizerAddr string) ([]*OrganizerEvent, error) {
	events, err := s.registry.ListByOrganizer(ctx, organizerAddr)
	if err != nil {
		return nil, err
	}

	out := make([]*OrganizerEvent, 0, len(events))
	for _, event := range events {
		bal, err := s.store.Get(ctx, event.EventID)
		if err != nil {
			return nil, err
		}
		out = append(out, &OrganizerEvent{Event: event, Balance: bal})
	}
	return out, nil
}

// Credit adds a settled payment's split to the event balance.
func (s *Service) Credit(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error {
	return s.store.Credit(ctx, eventID, organizerDelta, platformDelta)
}

// Reverse undoes a payment's escrow share during a refund.
func (s *Service) Reverse(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error {
	unlock, err := s.locks.LockContext(ctx, eventID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.Reverse(ctx, eventID, organizerDelta, platformDelta)
}

// WithdrawOrganizerFunds pays the event organizer as much of their
// escrowed share as the milestone plan currently unlocks.
//
// An event with no milestone plan is fully unlocked. Otherwise the
// highest release percentage among milestones whose sold-units
// threshold is met applies to lifetime revenue, minus what was already
// withdrawn. A zero-available result is not an error; nothing moves
// and the returned amount is 0.
func (s *Service) WithdrawOrganizerFunds(ctx context.Context, principal, eventID, tokenAddr string) (*WithdrawalResult, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.WithdrawOrganizerFunds", traces.EventID(eventID))
	defer span.End()

	if _, err := s.platform.RequireInitialized(ctx); err != nil {
		return nil, err
	}

	allowed, err := s.platform.IsTokenAllowed(ctx, tokenAddr)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, platform.ErrTokenNotWhitelisted
	}

	event, err := s.registry.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(principal, event.OrganizerAddress) {
		return nil, ErrUnauthorized
	}

	unlock, err := s.locks.LockContext(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	bal, err := s.store.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	releaseBps := unlockedBps(event.MilestonePlan, event.CurrentSupply)
	maxAllowed, err := money.ApplyBps(bal.TotalRevenue(), releaseBps)
	if err != nil {
		return nil, fmt.Errorf("invalid milestone plan for event %s: %w", eventID, err)
	}

	available := maxAllowed - bal.TotalWithdrawn
	if available > bal.OrganizerAmount {
		available = bal.OrganizerAmount
	}
	if available <= 0 {
		return &WithdrawalResult{
			EventID:    eventID,
			Amount:     0,
			Recipient:  event.OrganizerAddress,
			ReleaseBps: releaseBps,
		}, nil
	}

	txHash, err := s.token.Transfer(ctx, tokenAddr, event.OrganizerAddress, available)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "withdrawal transfer failed")
		return nil, fmt.Errorf("failed to transfer withdrawal: %w", err)
	}

	if err := s.store.DebitOrganizer(ctx, eventID, available); err != nil {
		// Tokens already moved; the reconciliation sweep will flag the
		// ledger drift if this write is lost.
		return nil, fmt.Errorf("failed to record withdrawal (tx %s): %w", txHash, err)
	}

	metrics.WithdrawalsTotal.WithLabelValues("organizer").Inc()
	metrics.WithdrawalVolume.WithLabelValues("organizer").Observe(float64(available))

	return &WithdrawalResult{
		EventID:         eventID,
		Amount:          available,
		Recipient:       event.OrganizerAddress,
		TransactionHash: txHash,
		ReleaseBps:      releaseBps,
	}, nil
}

// WithdrawPlatformFees sends an event's accumulated platform fees to
// the platform wallet. Admin only.
func (s *Service) WithdrawPlatformFees(ctx context.Context, principal, eventID, tokenAddr string) (*WithdrawalResult, error) {
	settings, err := s.platform.RequireInitialized(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(principal, settings.AdminAddress) {
		return nil, ErrUnauthorized
	}

	allowed, err := s.platform.IsTokenAllowed(ctx, tokenAddr)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, platform.ErrTokenNotWhitelisted
	}

	unlock, err := s.locks.LockContext(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	bal, err := s.store.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	// A drained fee balance is a no-op, mirroring the organizer path.
	if bal.PlatformFee <= 0 {
		return &WithdrawalResult{
			EventID:   eventID,
			Amount:    0,
			Recipient: settings.PlatformWallet,
		}, nil
	}

	amount := bal.PlatformFee
	txHash, err := s.token.Transfer(ctx, tokenAddr, settings.PlatformWallet, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to transfer platform fees: %w", err)
	}

	if err := s.store.DebitPlatform(ctx, eventID, amount); err != nil {
		return nil, fmt.Errorf("failed to record fee withdrawal (tx %s): %w", txHash, err)
	}

	metrics.WithdrawalsTotal.WithLabelValues("platform").Inc()
	metrics.WithdrawalVolume.WithLabelValues("platform").Observe(float64(amount))

	return &WithdrawalResult{
		EventID:         eventID,
		Amount:          amount,
		Recipient:       settings.PlatformWallet,
		TransactionHash: txHash,
	}, nil
}

// unlockedBps returns the release percentage the plan unlocks at the
// given cumulative units sold: 10000 for an empty plan, otherwise the
// highest percentage among met thresholds, 0 when none are met.
func unlockedBps(plan []registry.Milestone, unitsSold int64) uint32 {
	if len(plan) == 0 {
		return money.BpsDenominator
	}
	var best uint32
	for _, m := range plan {
		if unitsSold >= m.SalesThreshold && m.ReleasePercent > best {
			best = m.ReleasePercent
		}
	}
	return best
}
