package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/agoratix/ticketpay/internal/registry"
)

const (
	adminAddr     = "0x1111111111111111111111111111111111111111"
	tokenAddr     = "0x2222222222222222222222222222222222222222"
	walletAddr    = "0x3333333333333333333333333333333333333333"
	registryAddr  = "0x4444444444444444444444444444444444444444"
	holdingAddr   = "0x5555555555555555555555555555555555555555"
	organizerAddr = "0x6666666666666666666666666666666666666666"
	strangerAddr  = "0x7777777777777777777777777777777777777777"
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

func validInit() InitializeRequest {
	return InitializeRequest{
		AdminAddress:    adminAddr,
		TokenAddress:    tokenAddr,
		PlatformWallet:  walletAddr,
		RegistryAddress: registryAddr,
	}
}

func newTestService(t *testing.T) (*Service, *registry.Memory, *fakePublisher) {
	t.Helper()
	reg := registry.NewMemory()
	pub := &fakePublisher{}
	svc := NewService(NewMemoryStore(), reg, pub, holdingAddr)
	return svc, reg, pub
}

func TestInitialize_OneShot(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	settings, err := svc.Initialize(ctx, validInit())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !settings.Initialized || settings.Version != 1 {
		t.Errorf("unexpected settings: %+v", settings)
	}

	// Default token gets whitelisted
	ok, err := svc.IsTokenAllowed(ctx, tokenAddr)
	if err != nil || !ok {
		t.Errorf("expected default token whitelisted, got ok=%v err=%v", ok, err)
	}

	// Second run must fail
	if _, err := svc.Initialize(ctx, validInit()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}

	if len(pub.events) != 1 || pub.events[0].eventType != "service.initialized" {
		t.Errorf("expected one service.initialized event, got %+v", pub.events)
	}
}

func TestInitialize_SelfReference(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := validInit()
	req.TokenAddress = holdingAddr
	if _, err := svc.Initialize(context.Background(), req); !errors.Is(err, ErrSelfReference) {
		t.Errorf("expected ErrSelfReference, got %v", err)
	}

	// Failed initialization leaves the platform uninitialized
	if _, err := svc.Settings(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after failed init, got %v", err)
	}
}

func TestInitialize_InvalidAddress(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := validInit()
	req.AdminAddress = "not-an-address"
	if _, err := svc.Initialize(context.Background(), req); err == nil {
		t.Error("expected error for invalid admin address")
	}
}

func TestAddRemoveToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	other := "0x8888888888888888888888888888888888888888"

	// Whitelist mutations require initialization
	if err := svc.AddToken(ctx, adminAddr, other); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}

	if _, err := svc.Initialize(ctx, validInit()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Non-admin rejected
	if err := svc.AddToken(ctx, strangerAddr, other); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if err := svc.AddToken(ctx, adminAddr, other); err != nil {
		t.Fatalf("AddToken failed: %v", err)
	}
	ok, _ := svc.IsTokenAllowed(ctx, other)
	if !ok {
		t.Error("expected token whitelisted")
	}

	tokens, _ := svc.ListTokens(ctx)
	if len(tokens) != 2 {
		t.Errorf("expected 2 tokens, got %v", tokens)
	}

	if err := svc.RemoveToken(ctx, adminAddr, other); err != nil {
		t.Fatalf("RemoveToken failed: %v", err)
	}
	ok, _ = svc.IsTokenAllowed(ctx, other)
	if ok {
		t.Error("expected token removed from whitelist")
	}
}

func TestSetTransferFee(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Initialize(ctx, validInit()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	reg.PutEvent(&registry.EventInfo{
		EventID:          "evt_1",
		OrganizerAddress: organizerAddr,
		Active:           true,
	})

	// Only the organizer may set the fee
	if err := svc.SetTransferFee(ctx, strangerAddr, "evt_1", 50); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	// Negative fees rejected
	if err := svc.SetTransferFee(ctx, organizerAddr, "evt_1", -1); !errors.Is(err, ErrInvalidFee) {
		t.Errorf("expected ErrInvalidFee, got %v", err)
	}

	// Unknown event
	if err := svc.SetTransferFee(ctx, organizerAddr, "missing", 50); !errors.Is(err, registry.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}

	if err := svc.SetTransferFee(ctx, organizerAddr, "evt_1", 50); err != nil {
		t.Fatalf("SetTransferFee failed: %v", err)
	}
	fee, err := svc.TransferFee(ctx, "evt_1")
	if err != nil || fee != 50 {
		t.Errorf("expected fee 50, got %d (err %v)", fee, err)
	}

	// Unset event defaults to zero
	fee, err = svc.TransferFee(ctx, "evt_2")
	if err != nil || fee != 0 {
		t.Errorf("expected fee 0 for unset event, got %d (err %v)", fee, err)
	}
}

func TestRecordUpgrade(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RecordUpgrade(ctx, adminAddr); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}

	if _, err := svc.Initialize(ctx, validInit()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := svc.RecordUpgrade(ctx, strangerAddr); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	settings, err := svc.RecordUpgrade(ctx, adminAddr)
	if err != nil {
		t.Fatalf("RecordUpgrade failed: %v", err)
	}
	if settings.Version != 2 {
		t.Errorf("expected version 2, got %d", settings.Version)
	}

	last := pub.events[len(pub.events)-1]
	if last.eventType != "service.upgraded" {
		t.Errorf("expected service.upgraded event, got %s", last.eventType)
	}
}
