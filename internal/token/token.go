// Package token moves whitelisted ERC-20 tokens between buyers, the
// settlement holding wallet, organizers, and the platform wallet.
//
// All amounts are int64 smallest units. Callers decide which token
// contract to use; this package only executes and reads transfers.
package token

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidPrivateKey     = errors.New("token: invalid private key")
	ErrInvalidAddress        = errors.New("token: invalid address")
	ErrInvalidAmount         = errors.New("token: invalid amount")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrTransactionFailed     = errors.New("token: transaction failed")
	ErrRPCConnection         = errors.New("token: RPC connection failed")
)

// TransferError wraps transfer failures with the failing step.
type TransferError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *TransferError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("token: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("token: %s failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Service is the settlement view of an ERC-20 token network.
//
// Transfer spends from the holding wallet; TransferFrom spends a prior
// approval granted to the holding wallet. Both return the transaction
// hash of the submitted transfer.
type Service interface {
	BalanceOf(ctx context.Context, tokenAddr, addr string) (int64, error)
	Allowance(ctx context.Context, tokenAddr, owner, spender string) (int64, error)
	Transfer(ctx context.Context, tokenAddr, to string, amount int64) (string, error)
	TransferFrom(ctx context.Context, tokenAddr, from, to string, amount int64) (string, error)
	HoldingAddress() string
}
