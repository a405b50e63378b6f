// Package payments settles ticket purchases: it moves tokens from
// buyers into the holding wallet, splits the platform fee, records one
// payment per ticket, and handles refunds and fee-bearing transfers.
package payments

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPaymentNotFound            = errors.New("payments: payment not found")
	ErrPaymentExists              = errors.New("payments: payment already exists")
	ErrInvalidPaymentStatus       = errors.New("payments: payment status does not allow this operation")
	ErrEventInactive              = errors.New("payments: event is not active")
	ErrInsufficientAllowance      = errors.New("payments: buyer allowance below total")
	ErrTransferVerificationFailed = errors.New("payments: received amount does not match transfer")
	ErrTicketNotRefundable        = errors.New("payments: ticket tier is not refundable")
	ErrInvalidAddress             = errors.New("payments: invalid address")
	ErrInvalidAmount              = errors.New("payments: amount must be positive")
	ErrUnauthorized               = errors.New("payments: caller not authorized")
)

// Status represents the lifecycle state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRefunded  Status = "refunded"
	StatusFailed    Status = "failed"
)

// Payment is one settled ticket. A purchase of N tickets creates N
// records sharing a transaction hash; records after the first carry
// derived IDs `<paymentID>-<n>`.
type Payment struct {
	PaymentID       string     `json:"paymentId"`
	EventID         string     `json:"eventId"`
	BuyerAddress    string     `json:"buyerAddress"`
	TicketTierID    string     `json:"ticketTierId"`
	TokenAddress    string     `json:"tokenAddress"`
	Amount          int64      `json:"amount"`
	PlatformFee     int64      `json:"platformFee"`
	OrganizerAmount int64      `json:"organizerAmount"`
	Status          Status     `json:"status"`
	TransactionHash string     `json:"transactionHash,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ConfirmedAt     *time.Time `json:"confirmedAt,omitempty"`
}

// ProcessRequest is the request body for settling a purchase. The
// caller supplies the payment ID; it is the purchase's idempotency
// boundary, so a retried request with the same ID is rejected instead
// of charging the buyer twice.
type ProcessRequest struct {
	PaymentID    string `json:"paymentId" binding:"required"`
	EventID      string `json:"eventId" binding:"required"`
	BuyerAddress string `json:"buyerAddress" binding:"required"`
	TicketTierID string `json:"ticketTierId" binding:"required"`
	TokenAddress string `json:"tokenAddress" binding:"required"`
	UnitPrice    int64  `json:"unitPrice" binding:"required"`
	Quantity     uint32 `json:"quantity" binding:"required"`
}

// ProcessResult summarizes a settled purchase.
type ProcessResult struct {
	PaymentID       string   `json:"paymentId"`
	UnitPaymentIDs  []string `json:"unitPaymentIds"`
	Total           int64    `json:"total"`
	PlatformFee     int64    `json:"platformFee"`
	OrganizerAmount int64    `json:"organizerAmount"`
	TransactionHash string   `json:"transactionHash"`
}

// TransferRequest is the request body for a ticket transfer.
type TransferRequest struct {
	ToAddress string `json:"toAddress" binding:"required"`
}

// Store persists payment records.
//
// Create also maintains the buyer index: a payment ID appears exactly
// once under its current buyer, in insertion order. Reassign moves a
// payment between buyers, fixing both indices.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, paymentID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	ListByBuyer(ctx context.Context, buyerAddr, afterID string, limit int) ([]*Payment, error)
	Reassign(ctx context.Context, paymentID, fromAddr, toAddr string) error
	CountByEvent(ctx context.Context, eventID string) (int64, error)
}
