// Package reconciliation compares holding-wallet token balances and
// ticket inventory against the escrow ledger.
//
// Drift is reported, never repaired: every correction goes through an
// operator with context the sweep does not have.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/agoratix/ticketpay/internal/escrow"
	"github.com/agoratix/ticketpay/internal/metrics"
	"github.com/agoratix/ticketpay/internal/registry"
)

// LedgerSummer exposes escrow ledger totals.
type LedgerSummer interface {
	SumAll(ctx context.Context) (int64, error)
	ListBalances(ctx context.Context, limit int) ([]*escrow.EventBalance, error)
}

// TokenBalanceProvider reads holding-wallet balances per token.
type TokenBalanceProvider interface {
	BalanceOf(ctx context.Context, tokenAddr, addr string) (int64, error)
	HoldingAddress() string
}

// TokenLister returns the whitelisted payment tokens.
type TokenLister interface {
	ListTokens(ctx context.Context) ([]string, error)
}

// PaymentCounter counts live ticket units per event.
type PaymentCounter interface {
	CountByEvent(ctx context.Context, eventID string) (int64, error)
}

// EventProvider reads event state from the registry.
type EventProvider interface {
	GetEvent(ctx context.Context, eventID string) (*registry.EventInfo, error)
}

// HoldingsResult is the outcome of the holdings-vs-ledger check.
type HoldingsResult struct {
	Match          bool  `json:"match"`
	HoldingBalance int64 `json:"holdingBalance"`
	LedgerTotal    int64 `json:"ledgerTotal"`
	Diff           int64 `json:"diff"`
}

// InventoryDrift records one event whose registry supply disagrees
// with the payment records.
type InventoryDrift struct {
	EventID        string `json:"eventId"`
	RegistrySupply int64  `json:"registrySupply"`
	RecordedUnits  int64  `json:"recordedUnits"`
}

// Report is the outcome of a full reconciliation run.
type Report struct {
	RanAt     time.Time        `json:"ranAt"`
	Holdings  *HoldingsResult  `json:"holdings,omitempty"`
	Inventory []InventoryDrift `json:"inventory,omitempty"`
	Errors    []string         `json:"errors,omitempty"`
}

// Clean reports whether the run found no drift and no errors.
func (r *Report) Clean() bool {
	return len(r.Errors) == 0 &&
		len(r.Inventory) == 0 &&
		(r.Holdings == nil || r.Holdings.Match)
}

// MaxEventsPerRun bounds how many events one sweep inspects.
const MaxEventsPerRun = 1000

// Service performs reconciliation between the escrow ledger, the
// holding wallet, and the event registry.
type Service struct {
	ledger   LedgerSummer
	token    TokenBalanceProvider
	tokens   TokenLister
	payments PaymentCounter
	events   EventProvider

	// alertThreshold absorbs rounding dust below this many smallest
	// units before a holdings mismatch is flagged.
	alertThreshold int64
}

// NewService creates a reconciliation service.
func NewService(ledger LedgerSummer, token TokenBalanceProvider, tokens TokenLister, payments PaymentCounter, events EventProvider) *Service {
	return &Service{
		ledger:   ledger,
		token:    token,
		tokens:   tokens,
		payments: payments,
		events:   events,
	}
}

// SetAlertThreshold sets the holdings difference below which a
// mismatch is tolerated.
func (s *Service) SetAlertThreshold(amount int64) {
	if amount >= 0 {
		s.alertThreshold = amount
	}
}

// ReconcileHoldings compares the escrow ledger total against the sum
// of holding-wallet balances across whitelisted tokens.
func (s *Service) ReconcileHoldings(ctx context.Context) (*HoldingsResult, error) {
	ledgerTotal, err := s.ledger.SumAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum escrow ledger: %w", err)
	}

	tokens, err := s.tokens.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	holding := s.token.HoldingAddress()
	var holdingBalance int64
	for _, tokenAddr := range tokens {
		bal, err := s.token.BalanceOf(ctx, tokenAddr, holding)
		if err != nil {
			return nil, fmt.Errorf("failed to read holding balance for %s: %w", tokenAddr, err)
		}
		holdingBalance += bal
	}

	diff := holdingBalance - ledgerTotal
	absDiff := diff
	if absDiff < 0 {
		absDiff = -absDiff
	}

	return &HoldingsResult{
		Match:          absDiff <= s.alertThreshold,
		HoldingBalance: holdingBalance,
		LedgerTotal:    ledgerTotal,
		Diff:           diff,
	}, nil
}

// ReconcileInventory compares registry sold-unit counts against live
// payment records for every event with an escrow balance.
func (s *Service) ReconcileInventory(ctx context.Context) ([]InventoryDrift, error) {
	balances, err := s.ledger.ListBalances(ctx, MaxEventsPerRun)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var drifts []InventoryDrift
	for _, bal := range balances {
		event, err := s.events.GetEvent(ctx, bal.EventID)
		if err != nil {
			// Purged events still hold escrow; skip them.
			continue
		}

		recorded, err := s.payments.CountByEvent(ctx, bal.EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to count payments for %s: %w", bal.EventID, err)
		}

		if event.CurrentSupply != recorded {
			drifts = append(drifts, InventoryDrift{
				EventID:        bal.EventID,
				RegistrySupply: event.CurrentSupply,
				RecordedUnits:  recorded,
			})
		}
	}

	return drifts, nil
}

// RunAll executes every check and records metrics. Individual check
// failures are collected in the report rather than aborting the run.
func (s *Service) RunAll(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RanAt: start}

	holdings, err := s.ReconcileHoldings(ctx)
	if err != nil {
		reconcileErrors.Inc()
		report.Errors = append(report.Errors, err.Error())
	} else {
		report.Holdings = holdings
		if !holdings.Match {
			metrics.ReconciliationDriftDetected.Inc()
		}
	}

	drifts, err := s.ReconcileInventory(ctx)
	if err != nil {
		reconcileErrors.Inc()
		report.Errors = append(report.Errors, err.Error())
	} else {
		report.Inventory = drifts
		reconcileInventoryDrift.Set(float64(len(drifts)))
		if len(drifts) > 0 {
			metrics.ReconciliationDriftDetected.Inc()
		}
	}

	reconcileDuration.Observe(time.Since(start).Seconds())
	return report, nil
}
