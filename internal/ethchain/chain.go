// Package ethchain implements anchor.SettlementChain against a real
// Ethereum-compatible JSON-RPC endpoint, following the bound-contract idiom
// used by the pack's L1 batch-submission drivers (bind.NewBoundContract,
// bind.NewKeyedTransactorWithChainID, NoSend-then-RawTransact).
package ethchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/providenetwork/zksync/internal/anchor"
)

// Client is a SettlementChain backed by a live ethclient.Client connection
// and a single configured signing key.
type Client struct {
	backend    *ethclient.Client
	raw        *bind.BoundContract
	contract   common.Address
	privKey    *ecdsa.PrivateKey
	walletAddr common.Address
	chainID    *big.Int

	maxWithdrawalsPerCall uint32
}

// Config bundles the inputs required to dial and authenticate a Client.
type Config struct {
	RPCURL                string
	ContractAddr          common.Address
	PrivateKey            *ecdsa.PrivateKey
	ChainID               *big.Int
	MaxWithdrawalsPerCall uint32
}

// Dial connects to the settlement chain's JSON-RPC endpoint and prepares the
// bound contract used for every subsequent call.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing settlement chain at %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(anchorABI))
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("parsing anchor ABI: %w", err)
	}

	raw := bind.NewBoundContract(cfg.ContractAddr, parsed, backend, backend, backend)
	walletAddr := crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey)

	return &Client{
		backend:               backend,
		raw:                   raw,
		contract:              cfg.ContractAddr,
		privKey:               cfg.PrivateKey,
		walletAddr:            walletAddr,
		chainID:               cfg.ChainID,
		maxWithdrawalsPerCall: cfg.MaxWithdrawalsPerCall,
	}, nil
}

func (c *Client) Close() {
	c.backend.Close()
}

// Contract returns the anchor contract address this Client signs calls
// against, for logging/diagnostics at the call site.
func (c *Client) Contract() common.Address {
	return c.contract
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

func (c *Client) CurrentNonce(ctx context.Context) (*big.Int, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, c.walletAddr)
	if err != nil {
		return nil, fmt.Errorf("fetching pending nonce: %w", err)
	}
	return new(big.Int).SetUint64(nonce), nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggesting gas price: %w", err)
	}
	return price, nil
}

func (c *Client) GetTxStatus(ctx context.Context, hash common.Hash) (*anchor.TxStatus, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		// Not yet mined is reported as ethereum.NotFound by the RPC client;
		// the anchor treats "unknown" identically to "pending" by nil.
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching receipt for %s: %w", hash, err)
	}

	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching head for confirmation count: %w", err)
	}
	var confirmations uint64
	if head >= receipt.BlockNumber.Uint64() {
		confirmations = head - receipt.BlockNumber.Uint64()
	}

	return &anchor.TxStatus{
		Success:       receipt.Status == types.ReceiptStatusSuccessful,
		Confirmations: confirmations,
		Receipt:       receipt,
	}, nil
}

// SignCallTx encodes and signs, but does not broadcast, the contract call
// for op. Nonce/GasPrice overrides in opts take precedence over whatever
// the signer would otherwise pick, matching how replacement transactions
// are built in the Rust source (tx_options_from_stuck_tx).
func (c *Client) SignCallTx(ctx context.Context, op anchor.Operation, opts anchor.CallOptions) (anchor.SignedTx, error) {
	transactOpts, err := bind.NewKeyedTransactorWithChainID(c.privKey, c.chainID)
	if err != nil {
		return anchor.SignedTx{}, fmt.Errorf("building transactor: %w", err)
	}
	transactOpts.Context = ctx
	transactOpts.NoSend = true
	if opts.Nonce != nil {
		transactOpts.Nonce = opts.Nonce
	}
	if opts.GasPrice != nil {
		transactOpts.GasPrice = opts.GasPrice
	}

	var (
		tx      *types.Transaction
		callErr error
	)
	switch op.Action.Type {
	case anchor.ActionCommit:
		// _feeAccount is declared uint24 in the contract ABI. go-ethereum's
		// reflection-based packer only maps solidity int/uint widths
		// {8,16,32,64} onto native Go integer kinds (reflectIntType); every
		// other width, uint24 included, must be passed as *big.Int.
		feeAccount := new(big.Int).SetUint64(uint64(op.Block.FeeAccount))
		tx, callErr = c.raw.Transact(transactOpts, "commitBlock",
			op.Block.BlockNumber, feeAccount, op.Block.NewRoot,
			op.Block.PublicData, op.Block.WitnessData, op.Block.WitnessAux)
	case anchor.ActionVerify:
		// go-ethereum's abi/bind packages encode uint256 as *big.Int, not
		// uint256.Int, so the proof limbs are converted at this boundary.
		var proof [8]*big.Int
		for i, limb := range op.Action.Proof {
			proof[i] = limb.ToBig()
		}
		tx, callErr = c.raw.Transact(transactOpts, "verifyBlock", op.Block.BlockNumber, proof)
	default:
		return anchor.SignedTx{}, fmt.Errorf("unsupported action type %s", op.Action.Type)
	}
	if callErr != nil {
		return anchor.SignedTx{}, fmt.Errorf("signing %s call for op %d: %w", op.Action.Type, op.ID, callErr)
	}

	rawBytes, err := tx.MarshalBinary()
	if err != nil {
		return anchor.SignedTx{}, fmt.Errorf("encoding signed tx: %w", err)
	}

	return anchor.SignedTx{
		Hash:     tx.Hash(),
		Nonce:    tx.Nonce(),
		GasPrice: tx.GasPrice(),
		RawBytes: rawBytes,
	}, nil
}

func (c *Client) SendTx(ctx context.Context, signed anchor.SignedTx) error {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signed.RawBytes); err != nil {
		return fmt.Errorf("decoding raw tx for broadcast: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("broadcasting tx %s: %w", signed.Hash, err)
	}
	gethlog.Debug("broadcast settlement tx", "hash", signed.Hash, "nonce", signed.Nonce)
	return nil
}

func (c *Client) SignAndSendCompleteWithdrawals(ctx context.Context, n uint32) error {
	transactOpts, err := bind.NewKeyedTransactorWithChainID(c.privKey, c.chainID)
	if err != nil {
		return fmt.Errorf("building transactor: %w", err)
	}
	transactOpts.Context = ctx

	if n == 0 {
		n = c.maxWithdrawalsPerCall
	}
	_, err = c.raw.Transact(transactOpts, "completeWithdrawals", n)
	if err != nil {
		return fmt.Errorf("completing withdrawals: %w", err)
	}
	return nil
}

var _ anchor.SettlementChain = (*Client)(nil)
