package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agoratix/ticketpay/internal/escrow"
	"github.com/agoratix/ticketpay/internal/money"
	"github.com/agoratix/ticketpay/internal/platform"
	"github.com/agoratix/ticketpay/internal/registry"
	"github.com/agoratix/ticketpay/internal/token"
)

const (
	adminAddr     = "0x1111111111111111111111111111111111111111"
	tokenAddr     = "0x2222222222222222222222222222222222222222"
	walletAddr    = "0x3333333333333333333333333333333333333333"
	registryAddr  = "0x4444444444444444444444444444444444444444"
	holdingAddr   = "0x5555555555555555555555555555555555555555"
	organizerAddr = "0x6666666666666666666666666666666666666666"
	buyerAddr     = "0x7777777777777777777777777777777777777777"
	otherAddr     = "0x8888888888888888888888888888888888888888"
)

type capturedEvent struct {
	eventType string
	payload   map[string]any
}

type fakePublisher struct {
	events []capturedEvent
}

func (f *fakePublisher) Publish(ctx context.Context, eventType string, payload map[string]any) {
	f.events = append(f.events, capturedEvent{eventType, payload})
}

func (f *fakePublisher) last() capturedEvent {
	if len(f.events) == 0 {
		return capturedEvent{}
	}
	return f.events[len(f.events)-1]
}

type testEnv struct {
	svc    *Service
	store  *MemoryStore
	ledger *escrow.MemoryStore
	reg    *registry.Memory
	tok    *token.Memory
	plat   *platform.Service
	pub    *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	reg := registry.NewMemory()
	plat := platform.NewService(platform.NewMemoryStore(), reg, nil, holdingAddr)
	if _, err := plat.Initialize(ctx, platform.InitializeRequest{
		AdminAddress:    adminAddr,
		TokenAddress:    tokenAddr,
		PlatformWallet:  walletAddr,
		RegistryAddress: registryAddr,
	}); err != nil {
		t.Fatalf("platform init failed: %v", err)
	}

	tok := token.NewMemory(holdingAddr)
	ledger := escrow.NewMemoryStore()
	store := NewMemoryStore()
	pub := &fakePublisher{}

	svc := NewService(store, ledger, reg, tok, plat).WithPublisher(pub)
	return &testEnv{svc: svc, store: store, ledger: ledger, reg: reg, tok: tok, plat: plat, pub: pub}
}

// seedPurchase prepares a refundable-tier event and an approved buyer.
func (e *testEnv) seedPurchase(t *testing.T, refundable bool) {
	t.Helper()
	e.reg.PutEvent(&registry.EventInfo{
		EventID:          "evt_1",
		OrganizerAddress: organizerAddr,
		PlatformFeeBps:   500,
		Active:           true,
		MaxSupply:        1000,
		Tiers: map[string]registry.TicketTier{
			"ga": {Name: "General Admission", Price: 500, TierLimit: 100, Refundable: refundable},
		},
	})
	e.tok.SetBalance(tokenAddr, buyerAddr, 10_000)
	e.tok.SetAllowance(tokenAddr, buyerAddr, holdingAddr, 10_000)
}

func validRequest() ProcessRequest {
	return ProcessRequest{
		PaymentID:    "pay_req1",
		EventID:      "evt_1",
		BuyerAddress: buyerAddr,
		TicketTierID: "ga",
		TokenAddress: tokenAddr,
		UnitPrice:    500,
		Quantity:     2,
	}
}

func TestProcessPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, true)

	result, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}

	// 1000 total at 500 bps: fee 50, organizer 950.
	if result.Total != 1000 || result.PlatformFee != 50 || result.OrganizerAmount != 950 {
		t.Errorf("unexpected split: %+v", result)
	}
	if result.PaymentID != "pay_req1" {
		t.Errorf("expected caller-supplied payment ID, got %s", result.PaymentID)
	}
	if len(result.UnitPaymentIDs) != 2 {
		t.Fatalf("expected 2 unit payments, got %v", result.UnitPaymentIDs)
	}
	if result.UnitPaymentIDs[0] != result.PaymentID {
		t.Errorf("first unit must carry the base ID")
	}
	if want := result.PaymentID + "-2"; result.UnitPaymentIDs[1] != want {
		t.Errorf("second unit ID = %s, want %s", result.UnitPaymentIDs[1], want)
	}

	// Tokens arrived in the holding wallet.
	holdingBal, _ := env.tok.BalanceOf(ctx, tokenAddr, holdingAddr)
	if holdingBal != 1000 {
		t.Errorf("expected holding balance 1000, got %d", holdingBal)
	}

	// Escrow credited with the exact split.
	bal, _ := env.ledger.Get(ctx, "evt_1")
	if bal.OrganizerAmount != 950 || bal.PlatformFee != 50 {
		t.Errorf("unexpected escrow balance: %+v", bal)
	}

	// Inventory incremented.
	event, _ := env.reg.GetEvent(ctx, "evt_1")
	if event.Tiers["ga"].CurrentSold != 2 || event.CurrentSupply != 2 {
		t.Errorf("inventory not incremented: %+v", event)
	}

	// Per-unit records: unit price each, fee split per unit, pending.
	for _, id := range result.UnitPaymentIDs {
		p, err := env.store.Get(ctx, id)
		if err != nil {
			t.Fatalf("unit payment %s missing: %v", id, err)
		}
		if p.Amount != 500 || p.PlatformFee != 25 || p.OrganizerAmount != 475 {
			t.Errorf("unexpected unit split: %+v", p)
		}
		if p.Status != StatusPending {
			t.Errorf("expected pending status, got %s", p.Status)
		}
		if p.TransactionHash != result.TransactionHash {
			t.Errorf("unit record missing shared tx hash")
		}
	}

	// Buyer index lists both units in order.
	list, _ := env.store.ListByBuyer(ctx, strings.ToUpper(buyerAddr), "", 0)
	if len(list) != 2 {
		t.Errorf("expected 2 payments for buyer, got %d", len(list))
	}

	if env.pub.last().eventType != "payment.processed" {
		t.Errorf("expected payment.processed notification, got %+v", env.pub.last())
	}
}

func TestProcessPayment_Guards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, true)

	tests := []struct {
		name      string
		principal string
		mutate    func(*ProcessRequest)
		wantErr   error
	}{
		{
			name:      "principal must be buyer",
			principal: otherAddr,
			mutate:    func(r *ProcessRequest) {},
			wantErr:   ErrUnauthorized,
		},
		{
			name:      "token not whitelisted",
			principal: buyerAddr,
			mutate:    func(r *ProcessRequest) { r.TokenAddress = otherAddr },
			wantErr:   platform.ErrTokenNotWhitelisted,
		},
		{
			name:      "unknown event",
			principal: buyerAddr,
			mutate:    func(r *ProcessRequest) { r.EventID = "missing" },
			wantErr:   registry.ErrEventNotFound,
		},
		{
			name:      "unknown tier",
			principal: buyerAddr,
			mutate:    func(r *ProcessRequest) { r.TicketTierID = "vip" },
			wantErr:   registry.ErrTierNotFound,
		},
		{
			name:      "overflow",
			principal: buyerAddr,
			mutate: func(r *ProcessRequest) {
				r.UnitPrice = 1 << 62
				r.Quantity = 4
			},
			wantErr: money.ErrOverflow,
		},
		{
			name:      "missing payment id",
			principal: buyerAddr,
			mutate:    func(r *ProcessRequest) { r.PaymentID = "" },
			wantErr:   ErrInvalidAddress,
		},
		{
			name:      "non-positive unit price",
			principal: buyerAddr,
			mutate:    func(r *ProcessRequest) { r.UnitPrice = 0 },
			wantErr:   ErrInvalidAmount,
		},
		{
			name:      "zero quantity",
			principal: buyerAddr,
			mutate:    func(r *ProcessRequest) { r.Quantity = 0 },
			wantErr:   ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := env.svc.ProcessPayment(ctx, tt.principal, req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("inactive event", func(t *testing.T) {
		env.reg.SetActive("evt_1", false)
		defer env.reg.SetActive("evt_1", true)
		_, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
		if !errors.Is(err, ErrEventInactive) {
			t.Errorf("expected ErrEventInactive, got %v", err)
		}
	})

	t.Run("insufficient allowance", func(t *testing.T) {
		env.tok.SetAllowance(tokenAddr, buyerAddr, holdingAddr, 999)
		defer env.tok.SetAllowance(tokenAddr, buyerAddr, holdingAddr, 10_000)
		_, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
		if !errors.Is(err, ErrInsufficientAllowance) {
			t.Errorf("expected ErrInsufficientAllowance, got %v", err)
		}
	})

	// Nothing above should have created records or credited escrow.
	bal, _ := env.ledger.Get(ctx, "evt_1")
	if bal.OrganizerAmount != 0 || bal.PlatformFee != 0 {
		t.Errorf("escrow must be untouched after failed payments: %+v", bal)
	}
}

func TestProcessPayment_DuplicateID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, true)

	if _, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest()); err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	buyerAfter, _ := env.tok.BalanceOf(ctx, tokenAddr, buyerAddr)

	// A retried request with the same ID is rejected before any tokens
	// move.
	if _, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest()); !errors.Is(err, ErrPaymentExists) {
		t.Fatalf("expected ErrPaymentExists, got %v", err)
	}

	buyerRetry, _ := env.tok.BalanceOf(ctx, tokenAddr, buyerAddr)
	if buyerRetry != buyerAfter {
		t.Errorf("retry charged the buyer again: %d -> %d", buyerAfter, buyerRetry)
	}
	bal, _ := env.ledger.Get(ctx, "evt_1")
	if bal.OrganizerAmount != 950 || bal.PlatformFee != 50 {
		t.Errorf("retry touched escrow: %+v", bal)
	}
}

func TestProcessPayment_TransferVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, true)

	// A token that skims units in transit delivers less than was sent.
	env.tok.SetTransferTax(tokenAddr, 10)

	_, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
	if !errors.Is(err, ErrTransferVerificationFailed) {
		t.Fatalf("expected ErrTransferVerificationFailed, got %v", err)
	}

	// No escrow credit, no records.
	bal, _ := env.ledger.Get(ctx, "evt_1")
	if bal.OrganizerAmount != 0 || bal.PlatformFee != 0 {
		t.Errorf("escrow must be untouched: %+v", bal)
	}
	list, _ := env.store.ListByBuyer(ctx, buyerAddr, "", 0)
	if len(list) != 0 {
		t.Errorf("expected no payment records, got %d", len(list))
	}
}

func TestProcessPayment_NotInitialized(t *testing.T) {
	reg := registry.NewMemory()
	plat := platform.NewService(platform.NewMemoryStore(), reg, nil, holdingAddr)
	svc := NewService(NewMemoryStore(), escrow.NewMemoryStore(), reg, token.NewMemory(holdingAddr), plat)

	_, err := svc.ProcessPayment(context.Background(), buyerAddr, validRequest())
	if !errors.Is(err, platform.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestConfirmPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, true)

	result, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	id := result.PaymentID

	// Admin only
	if _, err := env.svc.ConfirmPayment(ctx, buyerAddr, id, ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	p, err := env.svc.ConfirmPayment(ctx, adminAddr, id, "0xsettled")
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if p.Status != StatusConfirmed || p.ConfirmedAt == nil {
		t.Errorf("expected confirmed payment, got %+v", p)
	}
	if p.TransactionHash != "0xsettled" {
		t.Errorf("expected settlement reference recorded, got %s", p.TransactionHash)
	}

	// Notification carries the transition and the settlement reference.
	last := env.pub.last()
	if last.eventType != "payment.status_changed" {
		t.Fatalf("expected payment.status_changed, got %s", last.eventType)
	}
	if last.payload["oldStatus"] != StatusPending || last.payload["status"] != StatusConfirmed {
		t.Errorf("unexpected status transition in payload: %+v", last.payload)
	}
	if last.payload["transactionHash"] != "0xsettled" {
		t.Errorf("expected settlement reference in payload, got %+v", last.payload)
	}

	// Idempotent: confirming again re-stamps without error.
	first := *p.ConfirmedAt
	p2, err := env.svc.ConfirmPayment(ctx, adminAddr, id, "")
	if err != nil {
		t.Fatalf("second confirm failed: %v", err)
	}
	if p2.Status != StatusConfirmed {
		t.Errorf("expected still confirmed, got %s", p2.Status)
	}
	if p2.ConfirmedAt.Before(first) {
		t.Error("expected ConfirmedAt re-stamped")
	}

	if _, err := env.svc.ConfirmPayment(ctx, adminAddr, "missing", ""); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestRequestGuestRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, true)

	result, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	id := result.UnitPaymentIDs[1]

	// Only the buyer may refund
	if _, err := env.svc.RequestGuestRefund(ctx, otherAddr, id); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	buyerBefore, _ := env.tok.BalanceOf(ctx, tokenAddr, buyerAddr)

	p, err := env.svc.RequestGuestRefund(ctx, buyerAddr, id)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if p.Status != StatusRefunded {
		t.Errorf("expected refunded status, got %s", p.Status)
	}

	// Buyer got the unit price back.
	buyerAfter, _ := env.tok.BalanceOf(ctx, tokenAddr, buyerAddr)
	if buyerAfter-buyerBefore != 500 {
		t.Errorf("expected 500 returned, got %d", buyerAfter-buyerBefore)
	}

	// Escrow reversed by the unit's share.
	bal, _ := env.ledger.Get(ctx, "evt_1")
	if bal.OrganizerAmount != 475 || bal.PlatformFee != 25 {
		t.Errorf("unexpected escrow after refund: %+v", bal)
	}

	// Inventory decremented.
	event, _ := env.reg.GetEvent(ctx, "evt_1")
	if event.CurrentSupply != 1 {
		t.Errorf("expected supply 1 after refund, got %d", event.CurrentSupply)
	}

	// Notification carries the old and new status.
	last := env.pub.last()
	if last.eventType != "payment.status_changed" {
		t.Fatalf("expected payment.status_changed, got %s", last.eventType)
	}
	if last.payload["oldStatus"] != StatusPending || last.payload["status"] != StatusRefunded {
		t.Errorf("unexpected status transition in payload: %+v", last.payload)
	}

	// Double refund rejected.
	if _, err := env.svc.RequestGuestRefund(ctx, buyerAddr, id); !errors.Is(err, ErrInvalidPaymentStatus) {
		t.Errorf("expected ErrInvalidPaymentStatus, got %v", err)
	}
}

func TestRequestGuestRefund_AllUnitsWithFeeDust(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 3 tickets at 10 with a 15% fee: total 30, fee 4, organizer 26.
	// Neither share divides evenly by 3.
	env.reg.PutEvent(&registry.EventInfo{
		EventID:          "evt_dust",
		OrganizerAddress: organizerAddr,
		PlatformFeeBps:   1500,
		Active:           true,
		MaxSupply:        100,
		Tiers: map[string]registry.TicketTier{
			"ga": {Name: "General Admission", Price: 10, TierLimit: 100, Refundable: true},
		},
	})
	env.tok.SetBalance(tokenAddr, buyerAddr, 1000)
	env.tok.SetAllowance(tokenAddr, buyerAddr, holdingAddr, 1000)

	result, err := env.svc.ProcessPayment(ctx, buyerAddr, ProcessRequest{
		PaymentID:    "pay_dust",
		EventID:      "evt_dust",
		BuyerAddress: buyerAddr,
		TicketTierID: "ga",
		TokenAddress: tokenAddr,
		UnitPrice:    10,
		Quantity:     3,
	})
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	if result.PlatformFee != 4 || result.OrganizerAmount != 26 {
		t.Fatalf("unexpected split: %+v", result)
	}

	// Floored per-unit shares; their sums stay within the escrow credit.
	var sumOrganizer, sumFee int64
	for _, id := range result.UnitPaymentIDs {
		p, err := env.store.Get(ctx, id)
		if err != nil {
			t.Fatalf("unit payment %s missing: %v", id, err)
		}
		if p.OrganizerAmount != 8 || p.PlatformFee != 1 {
			t.Errorf("unexpected unit split for %s: %+v", id, p)
		}
		sumOrganizer += p.OrganizerAmount
		sumFee += p.PlatformFee
	}
	if sumOrganizer > result.OrganizerAmount || sumFee > result.PlatformFee {
		t.Errorf("unit shares exceed escrow credit: organizer %d/%d fee %d/%d",
			sumOrganizer, result.OrganizerAmount, sumFee, result.PlatformFee)
	}

	// Refunding every unit of the purchase succeeds; the division dust
	// stays behind in escrow unassigned.
	for _, id := range result.UnitPaymentIDs {
		if _, err := env.svc.RequestGuestRefund(ctx, buyerAddr, id); err != nil {
			t.Fatalf("refund of %s failed: %v", id, err)
		}
	}
	bal, _ := env.ledger.Get(ctx, "evt_dust")
	if bal.OrganizerAmount != 2 || bal.PlatformFee != 1 {
		t.Errorf("expected dust 2/1 left in escrow, got %+v", bal)
	}
}

func TestRequestGuestRefund_NotRefundable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, false)

	result, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	id := result.PaymentID

	// Active event, non-refundable tier: rejected.
	if _, err := env.svc.RequestGuestRefund(ctx, buyerAddr, id); !errors.Is(err, ErrTicketNotRefundable) {
		t.Errorf("expected ErrTicketNotRefundable, got %v", err)
	}

	// Deactivating the event overrides the tier policy.
	env.reg.SetActive("evt_1", false)
	if _, err := env.svc.RequestGuestRefund(ctx, buyerAddr, id); err != nil {
		t.Errorf("expected refund after deactivation, got %v", err)
	}
}

func TestRequestGuestRefund_AfterWithdrawal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, true)

	result, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}

	// Organizer drains their share; the escrow can no longer cover the
	// refund's reversal.
	if err := env.ledger.DebitOrganizer(ctx, "evt_1", 950); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	_, err = env.svc.RequestGuestRefund(ctx, buyerAddr, result.PaymentID)
	if !errors.Is(err, escrow.ErrNegativeBalance) {
		t.Errorf("expected ErrNegativeBalance, got %v", err)
	}
}

func TestTransferTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPurchase(t, true)

	result, err := env.svc.ProcessPayment(ctx, buyerAddr, validRequest())
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	id := result.PaymentID

	// Pending tickets cannot be transferred.
	if _, err := env.svc.TransferTicket(ctx, buyerAddr, id, otherAddr); !errors.Is(err, ErrInvalidPaymentStatus) {
		t.Errorf("expected ErrInvalidPaymentStatus, got %v", err)
	}

	if _, err := env.svc.ConfirmPayment(ctx, adminAddr, id, ""); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	// Self-transfer rejected.
	if _, err := env.svc.TransferTicket(ctx, buyerAddr, id, buyerAddr); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}

	// Organizer sets a transfer fee.
	if err := env.plat.SetTransferFee(ctx, organizerAddr, "evt_1", 40); err != nil {
		t.Fatalf("set fee failed: %v", err)
	}

	organizerBefore, _ := env.ledger.Get(ctx, "evt_1")

	p, err := env.svc.TransferTicket(ctx, buyerAddr, id, otherAddr)
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if !strings.EqualFold(p.BuyerAddress, otherAddr) {
		t.Errorf("expected new holder %s, got %s", otherAddr, p.BuyerAddress)
	}

	// Fee credited entirely to the organizer's escrow share.
	organizerAfter, _ := env.ledger.Get(ctx, "evt_1")
	if organizerAfter.OrganizerAmount-organizerBefore.OrganizerAmount != 40 {
		t.Errorf("expected organizer share +40, got %+v", organizerAfter)
	}
	if organizerAfter.PlatformFee != organizerBefore.PlatformFee {
		t.Errorf("platform fee must not change on transfer")
	}

	// Buyer indices updated on both sides.
	oldList, _ := env.store.ListByBuyer(ctx, buyerAddr, "", 0)
	for _, rec := range oldList {
		if rec.PaymentID == id {
			t.Error("payment still indexed under previous holder")
		}
	}
	newList, _ := env.store.ListByBuyer(ctx, otherAddr, "", 0)
	if len(newList) != 1 || newList[0].PaymentID != id {
		t.Errorf("payment not indexed under new holder: %+v", newList)
	}

	// Only the current holder can transfer onwards.
	if _, err := env.svc.TransferTicket(ctx, buyerAddr, id, adminAddr); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if env.pub.last().eventType != "ticket.transferred" {
		t.Errorf("expected ticket.transferred notification")
	}
}

func TestGetBuyerPayments_Paging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p := &Payment{
			PaymentID:    fmt.Sprintf("pay_page%d", i),
			EventID:      "evt_1",
			BuyerAddress: buyerAddr,
			TicketTierID: "tier_ga",
			TokenAddress: tokenAddr,
			Amount:       100,
			Status:       StatusConfirmed,
			CreatedAt:    time.Now(),
		}
		if err := env.store.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// The service fetches limit+1 so the handler can detect another page.
	page, err := env.svc.GetBuyerPayments(ctx, buyerAddr, "", 2)
	if err != nil {
		t.Fatalf("GetBuyerPayments failed: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("Expected 3 records (limit+1), got %d", len(page))
	}
	if page[0].PaymentID != "pay_page0" {
		t.Errorf("Expected insertion order, got %s first", page[0].PaymentID)
	}

	rest, err := env.svc.GetBuyerPayments(ctx, buyerAddr, "pay_page2", 10)
	if err != nil {
		t.Fatalf("GetBuyerPayments with cursor failed: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("Expected 2 records after cursor, got %d", len(rest))
	}
	if rest[0].PaymentID != "pay_page3" {
		t.Errorf("Expected pay_page3 first after cursor, got %s", rest[0].PaymentID)
	}
}
