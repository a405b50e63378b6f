package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agoratix/ticketpay/internal/registry"
	"github.com/agoratix/ticketpay/internal/validation"
)

// Publisher emits lifecycle notifications to subscribers.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any)
}

// Service provides platform configuration business logic.
type Service struct {
	store       Store
	registry    registry.Client
	publisher   Publisher
	holdingAddr string
}

// NewService creates a new platform service. The holding address is the
// settlement wallet; initialization rejects any configuration address
// that points back at it.
func NewService(store Store, reg registry.Client, publisher Publisher, holdingAddr string) *Service {
	return &Service{
		store:       store,
		registry:    reg,
		publisher:   publisher,
		holdingAddr: strings.ToLower(holdingAddr),
	}
}

// Initialize performs one-shot settlement setup: records the admin,
// platform wallet, registry, and default payment token, and whitelists
// that token. Running twice fails with ErrAlreadyInitialized.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (*Settings, error) {
	_, err := s.store.GetSettings(ctx)
	if err == nil {
		return nil, ErrAlreadyInitialized
	}
	if !errors.Is(err, ErrNotInitialized) {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	addrs := map[string]string{
		"adminAddress":    req.AdminAddress,
		"tokenAddress":    req.TokenAddress,
		"platformWallet":  req.PlatformWallet,
		"registryAddress": req.RegistryAddress,
	}
	for field, addr := range addrs {
		if !validation.IsValidAddress(addr) {
			return nil, fmt.Errorf("platform: invalid %s", field)
		}
		if strings.EqualFold(addr, s.holdingAddr) {
			return nil, fmt.Errorf("%w: %s", ErrSelfReference, field)
		}
	}

	now := time.Now()
	settings := &Settings{
		AdminAddress:    validation.SanitizeAddress(req.AdminAddress),
		TokenAddress:    validation.SanitizeAddress(req.TokenAddress),
		PlatformWallet:  validation.SanitizeAddress(req.PlatformWallet),
		RegistryAddress: validation.SanitizeAddress(req.RegistryAddress),
		HoldingAddress:  s.holdingAddr,
		Version:         1,
		Initialized:     true,
		InitializedAt:   now,
		UpdatedAt:       now,
	}

	if err := s.store.PutSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to persist settings: %w", err)
	}
	if err := s.store.AddToken(ctx, settings.TokenAddress); err != nil {
		return nil, fmt.Errorf("failed to whitelist default token: %w", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, "service.initialized", map[string]any{
			"adminAddress":   settings.AdminAddress,
			"tokenAddress":   settings.TokenAddress,
			"platformWallet": settings.PlatformWallet,
			"version":        settings.Version,
		})
	}

	return settings, nil
}

// Settings returns the current platform settings.
func (s *Service) Settings(ctx context.Context) (*Settings, error) {
	return s.store.GetSettings(ctx)
}

// RequireInitialized fails with ErrNotInitialized until Initialize has
// run.
func (s *Service) RequireInitialized(ctx context.Context) (*Settings, error) {
	return s.store.GetSettings(ctx)
}

// AddToken whitelists a payment token. Admin only.
func (s *Service) AddToken(ctx context.Context, principal, tokenAddr string) error {
	settings, err := s.requireAdmin(ctx, principal)
	if err != nil {
		return err
	}
	if !validation.IsValidAddress(tokenAddr) {
		return fmt.Errorf("platform: invalid token address")
	}
	if strings.EqualFold(tokenAddr, settings.HoldingAddress) {
		return fmt.Errorf("%w: tokenAddress", ErrSelfReference)
	}
	return s.store.AddToken(ctx, validation.SanitizeAddress(tokenAddr))
}

// RemoveToken removes a token from the whitelist. Admin only. Existing
// balances in that token stay withdrawable; only new payments stop.
func (s *Service) RemoveToken(ctx context.Context, principal, tokenAddr string) error {
	if _, err := s.requireAdmin(ctx, principal); err != nil {
		return err
	}
	return s.store.RemoveToken(ctx, validation.SanitizeAddress(tokenAddr))
}

// IsTokenAllowed reports whether payments in the token are accepted.
func (s *Service) IsTokenAllowed(ctx context.Context, tokenAddr string) (bool, error) {
	return s.store.IsTokenWhitelisted(ctx, validation.SanitizeAddress(tokenAddr))
}

// ListTokens returns the whitelisted payment tokens.
func (s *Service) ListTokens(ctx context.Context) ([]string, error) {
	return s.store.ListTokens(ctx)
}

// SetTransferFee sets the fee charged on ticket transfers for an event.
// Only the event's organizer may set it; negative fees are rejected.
func (s *Service) SetTransferFee(ctx context.Context, principal, eventID string, fee int64) error {
	if _, err := s.store.GetSettings(ctx); err != nil {
		return err
	}
	if fee < 0 {
		return ErrInvalidFee
	}

	event, err := s.registry.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(principal, event.OrganizerAddress) {
		return ErrUnauthorized
	}

	return s.store.SetTransferFee(ctx, eventID, fee)
}

// TransferFee returns the event's ticket transfer fee, 0 if unset.
func (s *Service) TransferFee(ctx context.Context, eventID string) (int64, error) {
	return s.store.GetTransferFee(ctx, eventID)
}

// RecordUpgrade bumps the version counter. Admin only.
func (s *Service) RecordUpgrade(ctx context.Context, principal string) (*Settings, error) {
	settings, err := s.requireAdmin(ctx, principal)
	if err != nil {
		return nil, err
	}

	settings.Version++
	settings.UpdatedAt = time.Now()
	if err := s.store.PutSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to persist settings: %w", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, "service.upgraded", map[string]any{
			"version": settings.Version,
		})
	}

	return settings, nil
}

// requireAdmin loads settings and verifies the caller is the admin.
func (s *Service) requireAdmin(ctx context.Context, principal string) (*Settings, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(principal, settings.AdminAddress) {
		return nil, ErrUnauthorized
	}
	return settings, nil
}
