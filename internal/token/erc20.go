package token

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ERC20 minimal ABI: reads plus the two transfer paths we use.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const (
	// DefaultGasLimit for ERC20 transfers when estimation fails
	DefaultGasLimit = uint64(100000)
)

// EthClient abstracts the go-ethereum client for testing
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Config for connecting the holding wallet to a chain.
type Config struct {
	RPCURL     string
	PrivateKey string // hex, 0x prefix optional
	ChainID    int64
}

// Option configures the ERC20 service
type Option func(*ERC20)

// WithClient sets a custom Ethereum client (useful for testing)
func WithClient(client EthClient) Option {
	return func(s *ERC20) {
		s.client = client
	}
}

// ERC20 executes token movements from the settlement holding wallet.
type ERC20 struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	abi        abi.ABI
}

var _ Service = (*ERC20)(nil)

// NewERC20 creates a token service backed by the holding wallet key.
func NewERC20(cfg Config, opts ...Option) (*ERC20, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	s := &ERC20{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		chainID:    big.NewInt(cfg.ChainID),
		abi:        parsedABI,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		s.client = client
	}

	return s, nil
}

func validateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("%w: private key required", ErrInvalidPrivateKey)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("chain ID required")
	}
	return nil
}

// HoldingAddress returns the settlement holding wallet address.
func (s *ERC20) HoldingAddress() string {
	return s.address.Hex()
}

// BalanceOf returns the token balance of any address.
func (s *ERC20) BalanceOf(ctx context.Context, tokenAddr, addr string) (int64, error) {
	contract := common.HexToAddress(tokenAddr)
	data, err := s.abi.Pack("balanceOf", common.HexToAddress(addr))
	if err != nil {
		return 0, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	return toInt64(new(big.Int).SetBytes(result))
}

// Allowance returns how much spender may spend on owner's behalf.
func (s *ERC20) Allowance(ctx context.Context, tokenAddr, owner, spender string) (int64, error) {
	contract := common.HexToAddress(tokenAddr)
	data, err := s.abi.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return 0, fmt.Errorf("failed to pack allowance call: %w", err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to call allowance: %w", err)
	}

	return toInt64(new(big.Int).SetBytes(result))
}

// Transfer sends tokens from the holding wallet to a recipient.
func (s *ERC20) Transfer(ctx context.Context, tokenAddr, to string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	data, err := s.abi.Pack("transfer", common.HexToAddress(to), big.NewInt(amount))
	if err != nil {
		return "", &TransferError{Op: "pack", Err: err}
	}
	return s.submit(ctx, common.HexToAddress(tokenAddr), data)
}

// TransferFrom spends an approval granted to the holding wallet.
func (s *ERC20) TransferFrom(ctx context.Context, tokenAddr, from, to string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	data, err := s.abi.Pack("transferFrom",
		common.HexToAddress(from), common.HexToAddress(to), big.NewInt(amount))
	if err != nil {
		return "", &TransferError{Op: "pack", Err: err}
	}
	return s.submit(ctx, common.HexToAddress(tokenAddr), data)
}

func (s *ERC20) submit(ctx context.Context, contract common.Address, data []byte) (string, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", &TransferError{Op: "nonce", Err: err}
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", &TransferError{Op: "gas_price", Err: err}
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &contract,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		// Use default if estimation fails
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		return "", &TransferError{Op: "sign", Err: err}
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", &TransferError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}

	return signedTx.Hash().Hex(), nil
}

// Close closes the client connection.
func (s *ERC20) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

var maxInt64 = big.NewInt(0).SetUint64(1<<63 - 1)

// toInt64 clamps chain reads into the int64 smallest-unit model used
// across settlement. Values beyond int64 would overflow every ledger
// field downstream, so they are rejected here.
func toInt64(v *big.Int) (int64, error) {
	if v.Cmp(maxInt64) > 0 {
		return 0, fmt.Errorf("%w: value exceeds int64 range", ErrInvalidAmount)
	}
	return v.Int64(), nil
}
