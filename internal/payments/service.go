package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agoratix/ticketpay/internal/logging"
	"github.com/agoratix/ticketpay/internal/metrics"
	"github.com/agoratix/ticketpay/internal/money"
	"github.com/agoratix/ticketpay/internal/platform"
	"github.com/agoratix/ticketpay/internal/registry"
	"github.com/agoratix/ticketpay/internal/syncutil"
	"github.com/agoratix/ticketpay/internal/token"
	"github.com/agoratix/ticketpay/internal/traces"
	"github.com/agoratix/ticketpay/internal/validation"

	"go.opentelemetry.io/otel/codes"
)

// EscrowLedger abstracts the balance ledger so payments doesn't depend
// on the withdrawal engine.
type EscrowLedger interface {
	Credit(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error
	Reverse(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error
}

// SettingsProvider supplies settlement configuration and per-event
// transfer fees.
type SettingsProvider interface {
	RequireInitialized(ctx context.Context) (*platform.Settings, error)
	IsTokenAllowed(ctx context.Context, tokenAddr string) (bool, error)
	TransferFee(ctx context.Context, eventID string) (int64, error)
}

// Publisher emits payment lifecycle notifications.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any)
}

// Service implements payment settlement business logic.
type Service struct {
	store     Store
	escrow    EscrowLedger
	registry  registry.Client
	token     token.Service
	platform  SettingsProvider
	publisher Publisher
	locks     *syncutil.ContextShardedMutex // per-payment locks to prevent concurrent transitions
}

// NewService creates a new payments service.
func NewService(store Store, ledger EscrowLedger, reg registry.Client, tok token.Service, platformSvc SettingsProvider) *Service {
	return &Service{
		store:    store,
		escrow:   ledger,
		registry: reg,
		token:    tok,
		platform: platformSvc,
		locks:    syncutil.NewContextShardedMutex(),
	}
}

// WithPublisher adds a notification publisher.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// ProcessPayment settles a ticket purchase: it pulls the buyer's
// approved tokens into the holding wallet, verifies the received
// amount, credits the event's escrow balance, and records one payment
// per ticket under the caller-supplied payment ID. A reused ID fails
// with ErrPaymentExists before any tokens move.
//
// Inventory increment failures after the money has moved are tolerated
// and logged; the reconciliation sweep reports the resulting drift.
func (s *Service) ProcessPayment(ctx context.Context, principal string, req ProcessRequest) (*ProcessResult, error) {
	ctx, span := traces.StartSpan(ctx, "payments.ProcessPayment",
		traces.EventID(req.EventID), traces.TierID(req.TicketTierID), traces.Buyer(req.BuyerAddress))
	defer span.End()

	if _, err := s.platform.RequireInitialized(ctx); err != nil {
		return nil, err
	}

	if errs := validation.Validate(
		validation.Required("paymentId", req.PaymentID),
		validation.Required("eventId", req.EventID),
		validation.Required("ticketTierId", req.TicketTierID),
		validation.ValidAddress("buyerAddress", req.BuyerAddress),
		validation.ValidAddress("tokenAddress", req.TokenAddress),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, errs)
	}
	if errs := validation.Validate(
		validation.PositiveAmount("unitPrice", req.UnitPrice),
		validation.PositiveQuantity("quantity", req.Quantity),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, errs)
	}
	if !strings.EqualFold(principal, req.BuyerAddress) {
		return nil, ErrUnauthorized
	}

	// The caller-supplied payment ID is the purchase's idempotency
	// boundary: a retried request must fail before any tokens move.
	unlock, err := s.locks.LockContext(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.store.Get(ctx, req.PaymentID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentExists, req.PaymentID)
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	allowed, err := s.platform.IsTokenAllowed(ctx, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, platform.ErrTokenNotWhitelisted
	}

	total, err := money.Mul(req.UnitPrice, int64(req.Quantity))
	if err != nil {
		return nil, err
	}

	event, err := s.registry.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.Active {
		return nil, ErrEventInactive
	}
	if _, err := event.Tier(req.TicketTierID); err != nil {
		return nil, err
	}

	fee, organizerShare, err := money.SplitFee(total, event.PlatformFeeBps)
	if err != nil {
		return nil, err
	}

	buyer := validation.SanitizeAddress(req.BuyerAddress)
	tokenAddr := validation.SanitizeAddress(req.TokenAddress)
	holding := s.token.HoldingAddress()

	allowance, err := s.token.Allowance(ctx, tokenAddr, buyer, holding)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}
	if allowance < total {
		return nil, ErrInsufficientAllowance
	}

	balanceBefore, err := s.token.BalanceOf(ctx, tokenAddr, holding)
	if err != nil {
		return nil, fmt.Errorf("failed to read holding balance: %w", err)
	}

	txHash, err := s.token.TransferFrom(ctx, tokenAddr, buyer, holding, total)
	if err != nil {
		metrics.PaymentsProcessedTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "token collection failed")
		return nil, fmt.Errorf("failed to collect payment: %w", err)
	}

	// Fee-on-transfer or rebasing tokens can deliver less than was
	// sent. The escrow ledger must only ever account for tokens the
	// holding wallet actually received.
	balanceAfter, err := s.token.BalanceOf(ctx, tokenAddr, holding)
	if err != nil {
		return nil, fmt.Errorf("failed to verify holding balance (tx %s): %w", txHash, err)
	}
	if balanceAfter-balanceBefore != total {
		metrics.PaymentsProcessedTotal.WithLabelValues("verification_failed").Inc()
		return nil, fmt.Errorf("%w: tx %s", ErrTransferVerificationFailed, txHash)
	}

	if err := s.escrow.Credit(ctx, req.EventID, organizerShare, fee); err != nil {
		return nil, fmt.Errorf("failed to credit escrow (tx %s): %w", txHash, err)
	}

	if err := s.registry.IncrementInventory(ctx, req.EventID, req.TicketTierID, req.Quantity); err != nil {
		logging.L(ctx).Warn("inventory increment failed after settlement",
			"event_id", req.EventID,
			"tier_id", req.TicketTierID,
			"quantity", req.Quantity,
			"error", err,
		)
	}

	now := time.Now()
	baseID := req.PaymentID
	// Per-unit shares are floored; the division dust stays in escrow
	// unassigned, so refunding every unit can never overdraw the ledger.
	unitFee := money.PerUnit(fee, req.Quantity)
	unitOrganizer := money.PerUnit(organizerShare, req.Quantity)

	unitIDs := make([]string, 0, req.Quantity)
	for i := uint32(0); i < req.Quantity; i++ {
		unitID := baseID
		if i > 0 {
			unitID = fmt.Sprintf("%s-%d", baseID, i+1)
		}
		unitIDs = append(unitIDs, unitID)

		record := &Payment{
			PaymentID:       unitID,
			EventID:         req.EventID,
			BuyerAddress:    buyer,
			TicketTierID:    req.TicketTierID,
			TokenAddress:    tokenAddr,
			Amount:          req.UnitPrice,
			PlatformFee:     unitFee,
			OrganizerAmount: unitOrganizer,
			Status:          StatusPending,
			TransactionHash: txHash,
			CreatedAt:       now,
		}
		if err := s.store.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to record payment %s (tx %s): %w", unitID, txHash, err)
		}
	}

	metrics.PaymentsProcessedTotal.WithLabelValues("success").Inc()
	metrics.PaymentVolume.Observe(float64(total))

	s.publish(ctx, "payment.processed", map[string]any{
		"paymentId":       baseID,
		"eventId":         req.EventID,
		"buyerAddress":    buyer,
		"amount":          total,
		"platformFee":     fee,
		"quantity":        req.Quantity,
		"transactionHash": txHash,
	})

	return &ProcessResult{
		PaymentID:       baseID,
		UnitPaymentIDs:  unitIDs,
		Total:           total,
		PlatformFee:     fee,
		OrganizerAmount: organizerShare,
		TransactionHash: txHash,
	}, nil
}

// ConfirmPayment marks a payment as settled. Restricted to the admin.
// Confirming an already-confirmed payment re-stamps ConfirmedAt.
func (s *Service) ConfirmPayment(ctx context.Context, principal, paymentID, txHash string) (*Payment, error) {
	settings, err := s.platform.RequireInitialized(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(principal, settings.AdminAddress) {
		return nil, ErrUnauthorized
	}

	unlock, err := s.locks.LockContext(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case StatusPending, StatusConfirmed:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentStatus, payment.Status)
	}

	now := time.Now()
	oldStatus := payment.Status
	payment.Status = StatusConfirmed
	payment.ConfirmedAt = &now
	if txHash != "" {
		payment.TransactionHash = txHash
	}

	if err := s.store.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}

	s.publish(ctx, "payment.status_changed", map[string]any{
		"paymentId":       payment.PaymentID,
		"eventId":         payment.EventID,
		"oldStatus":       oldStatus,
		"status":          payment.Status,
		"transactionHash": payment.TransactionHash,
	})

	return payment, nil
}

// RequestGuestRefund refunds a single ticket to its buyer. The ticket
// must be refundable by tier, or the event must have been deactivated.
// The payment's escrow share is reversed and the tokens returned to
// the buyer from the holding wallet.
func (s *Service) RequestGuestRefund(ctx context.Context, principal, paymentID string) (*Payment, error) {
	ctx, span := traces.StartSpan(ctx, "payments.RequestGuestRefund", traces.PaymentID(paymentID))
	defer span.End()

	if _, err := s.platform.RequireInitialized(ctx); err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockContext(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(principal, payment.BuyerAddress) {
		return nil, ErrUnauthorized
	}

	switch payment.Status {
	case StatusPending, StatusConfirmed:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentStatus, payment.Status)
	}

	event, err := s.registry.GetEvent(ctx, payment.EventID)
	if err != nil {
		return nil, err
	}
	tier, err := event.Tier(payment.TicketTierID)
	if err != nil {
		return nil, err
	}
	if !tier.Refundable && event.Active {
		return nil, ErrTicketNotRefundable
	}

	// Reverse this ticket's share first: if the organizer has already
	// withdrawn past it the refund fails with ErrNegativeBalance and
	// nothing moves.
	if err := s.escrow.Reverse(ctx, payment.EventID, payment.OrganizerAmount, payment.PlatformFee); err != nil {
		metrics.RefundsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to reverse escrow share: %w", err)
	}

	txHash, err := s.token.Transfer(ctx, payment.TokenAddress, payment.BuyerAddress, payment.Amount)
	if err != nil {
		metrics.RefundsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "token return failed")
		return nil, fmt.Errorf("failed to return tokens: %w", err)
	}

	if err := s.registry.DecrementInventory(ctx, payment.EventID, payment.TicketTierID); err != nil {
		logging.L(ctx).Warn("inventory decrement failed after refund",
			"event_id", payment.EventID,
			"tier_id", payment.TicketTierID,
			"error", err,
		)
	}

	now := time.Now()
	oldStatus := payment.Status
	payment.Status = StatusRefunded
	payment.ConfirmedAt = &now
	payment.TransactionHash = txHash
	if err := s.store.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to record refund (tx %s): %w", txHash, err)
	}

	metrics.RefundsTotal.WithLabelValues("success").Inc()

	s.publish(ctx, "payment.status_changed", map[string]any{
		"paymentId":       payment.PaymentID,
		"eventId":         payment.EventID,
		"oldStatus":       oldStatus,
		"status":          payment.Status,
		"transactionHash": txHash,
	})

	return payment, nil
}

// TransferTicket moves a confirmed ticket to another wallet. Any
// per-event transfer fee is collected from the current holder and
// credited entirely to the event organizer's escrow balance.
func (s *Service) TransferTicket(ctx context.Context, principal, paymentID, toAddr string) (*Payment, error) {
	ctx, span := traces.StartSpan(ctx, "payments.TransferTicket", traces.PaymentID(paymentID))
	defer span.End()

	if _, err := s.platform.RequireInitialized(ctx); err != nil {
		return nil, err
	}
	if !validation.IsValidAddress(toAddr) {
		return nil, ErrInvalidAddress
	}

	unlock, err := s.locks.LockContext(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(principal, payment.BuyerAddress) {
		return nil, ErrUnauthorized
	}
	if payment.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentStatus, payment.Status)
	}

	to := validation.SanitizeAddress(toAddr)
	if strings.EqualFold(to, payment.BuyerAddress) {
		return nil, ErrInvalidAddress
	}

	fee, err := s.platform.TransferFee(ctx, payment.EventID)
	if err != nil {
		return nil, err
	}
	if fee > 0 {
		holding := s.token.HoldingAddress()
		if _, err := s.token.TransferFrom(ctx, payment.TokenAddress, payment.BuyerAddress, holding, fee); err != nil {
			metrics.TicketTransfersTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to collect transfer fee: %w", err)
		}
		// The transfer fee belongs entirely to the organizer.
		if err := s.escrow.Credit(ctx, payment.EventID, fee, 0); err != nil {
			return nil, fmt.Errorf("failed to credit transfer fee: %w", err)
		}
	}

	from := payment.BuyerAddress
	if err := s.store.Reassign(ctx, paymentID, from, to); err != nil {
		return nil, fmt.Errorf("failed to reassign ticket: %w", err)
	}
	payment.BuyerAddress = to

	metrics.TicketTransfersTotal.WithLabelValues("success").Inc()

	s.publish(ctx, "ticket.transferred", map[string]any{
		"paymentId":   payment.PaymentID,
		"eventId":     payment.EventID,
		"fromAddress": from,
		"toAddress":   to,
		"fee":         fee,
	})

	return payment, nil
}

// GetPaymentStatus returns a payment by ID.
func (s *Service) GetPaymentStatus(ctx context.Context, paymentID string) (*Payment, error) {
	return s.store.Get(ctx, paymentID)
}

// GetBuyerPayments returns the buyer's payments in insertion order,
// starting after the cursor payment when one is given. It fetches one
// extra record so the caller can tell whether another page exists.
func (s *Service) GetBuyerPayments(ctx context.Context, buyerAddr, afterID string, limit int) ([]*Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListByBuyer(ctx, buyerAddr, afterID, limit+1)
}

func (s *Service) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, eventType, payload)
	}
}
