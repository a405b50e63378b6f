// Package platform manages settlement-wide configuration: one-shot
// initialization, the payment token whitelist, per-event ticket
// transfer fees, and the upgrade version counter.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyInitialized  = errors.New("platform: already initialized")
	ErrNotInitialized      = errors.New("platform: not initialized")
	ErrSelfReference       = errors.New("platform: address references the holding wallet")
	ErrTokenNotWhitelisted = errors.New("platform: token not whitelisted")
	ErrInvalidFee          = errors.New("platform: transfer fee must not be negative")
	ErrUnauthorized        = errors.New("platform: caller not authorized")
)

// Settings is the singleton settlement configuration written at
// initialization time.
type Settings struct {
	AdminAddress    string    `json:"adminAddress"`
	TokenAddress    string    `json:"tokenAddress"`
	PlatformWallet  string    `json:"platformWallet"`
	RegistryAddress string    `json:"registryAddress"`
	HoldingAddress  string    `json:"holdingAddress"`
	Version         uint32    `json:"version"`
	Initialized     bool      `json:"initialized"`
	InitializedAt   time.Time `json:"initializedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// InitializeRequest is the request body for one-shot initialization.
type InitializeRequest struct {
	AdminAddress    string `json:"adminAddress" binding:"required"`
	TokenAddress    string `json:"tokenAddress" binding:"required"`
	PlatformWallet  string `json:"platformWallet" binding:"required"`
	RegistryAddress string `json:"registryAddress" binding:"required"`
}

// TransferFeeRequest is the request body for setting an event's ticket
// transfer fee.
type TransferFeeRequest struct {
	Fee *int64 `json:"fee" binding:"required"`
}

// Store persists platform settings, the token whitelist, and per-event
// transfer fees.
//
// GetSettings returns ErrNotInitialized when initialization has never
// run. GetTransferFee returns 0 for events with no fee configured.
type Store interface {
	GetSettings(ctx context.Context) (*Settings, error)
	PutSettings(ctx context.Context, s *Settings) error
	AddToken(ctx context.Context, tokenAddr string) error
	RemoveToken(ctx context.Context, tokenAddr string) error
	IsTokenWhitelisted(ctx context.Context, tokenAddr string) (bool, error)
	ListTokens(ctx context.Context) ([]string, error)
	SetTransferFee(ctx context.Context, eventID string, fee int64) error
	GetTransferFee(ctx context.Context, eventID string) (int64, error)
}
