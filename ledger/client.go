// Package ledger provides the typed client for the soulbound certificate
// contract. Every call is either a decoded read or a submit-and-confirm
// round trip; all failures are normalized to the interfaces error kinds.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// DefaultConfirmationTimeout bounds how long a mutating call waits for its
// receipt before surfacing ErrTransactionTimeout.
const DefaultConfirmationTimeout = 90 * time.Second

// Client implements interfaces.CertificateLedger against a deployed
// certificate contract. It owns no state beyond the connection handles; every
// confirmed mutation changes ledger state observable by any other reader.
type Client struct {
	contract *bind.BoundContract
	abi      abi.ABI
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts

	confirmTimeout time.Duration
	log            *slog.Logger
}

// NewClient creates a client for the certificate contract at the specified
// address. It requires a ContractBackend for reads and a DeployBackend for
// waiting on transaction receipts.
func NewClient(caller bind.ContractBackend, backend bind.DeployBackend, address common.Address, log *slog.Logger) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(certificateABI))
	if err != nil {
		return nil, fmt.Errorf("parsing certificate ABI: %w", err)
	}

	return &Client{
		contract:       bind.NewBoundContract(address, parsed, caller, caller, caller),
		abi:            parsed,
		backend:        backend,
		address:        address,
		confirmTimeout: DefaultConfirmationTimeout,
		log:            log,
	}, nil
}

// SetTransactOpts sets the signing options required for mutating calls. It
// must be called before Issue, Approve, or Revoke.
func (c *Client) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// SetConfirmationTimeout overrides the bounded wait for receipts.
func (c *Client) SetConfirmationTimeout(d time.Duration) {
	if d > 0 {
		c.confirmTimeout = d
	}
}

// ContractAddress returns the bound contract address.
func (c *Client) ContractAddress() common.Address {
	return c.address
}

// Issue submits mint(holder) and waits for confirmation.
func (c *Client) Issue(ctx context.Context, holder common.Address) (common.Hash, error) {
	if err := interfaces.ValidateAccount(holder); err != nil {
		return common.Hash{}, err
	}
	return c.transact(ctx, "mint", holder)
}

// Approve submits approveCertificate(id) and waits for confirmation.
func (c *Client) Approve(ctx context.Context, id interfaces.TokenID) (common.Hash, error) {
	return c.transact(ctx, "approveCertificate", id.BigInt())
}

// Revoke submits burn(id) and waits for confirmation.
func (c *Client) Revoke(ctx context.Context, id interfaces.TokenID) (common.Hash, error) {
	return c.transact(ctx, "burn", id.BigInt())
}

// CredentialsOf returns the token IDs currently held by account.
func (c *Client) CredentialsOf(ctx context.Context, account common.Address) ([]interfaces.TokenID, error) {
	if err := interfaces.ValidateAccount(account); err != nil {
		return nil, err
	}

	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, "studentCertificates", account); err != nil {
		return nil, normalizeReadError("studentCertificates", err)
	}

	raw := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	ids := make([]interfaces.TokenID, 0, len(raw))
	for _, v := range raw {
		id, err := interfaces.NewTokenIDFromBig(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// HolderOf returns the current holder of id. The contract reverts for tokens
// that never existed; that surfaces as ErrTransactionReverted.
func (c *Client) HolderOf(ctx context.Context, id interfaces.TokenID) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, "ownerOf", id.BigInt()); err != nil {
		return common.Address{}, normalizeReadError("ownerOf", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// Administrator returns the issuer account.
func (c *Client) Administrator(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, "owner"); err != nil {
		return common.Address{}, normalizeReadError("owner", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// BalanceOf returns the number of certificates held by account.
func (c *Client) BalanceOf(ctx context.Context, account common.Address) (uint64, error) {
	if err := interfaces.ValidateAccount(account); err != nil {
		return 0, err
	}

	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, "balanceOf", account); err != nil {
		return 0, normalizeReadError("balanceOf", err)
	}

	balance := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if balance == nil || !balance.IsUint64() {
		return 0, fmt.Errorf("%w: balance out of range", interfaces.ErrReadDecodeFailure)
	}
	return balance.Uint64(), nil
}

// RawRecord reads the contract's internal certificate record. Deployments
// that do not expose the mapping fail here with ErrReadDecodeFailure; the
// status probe turns that into its documented fallback.
func (c *Client) RawRecord(ctx context.Context, id interfaces.TokenID) (interfaces.CertificateStatus, error) {
	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, "_certificates", id.BigInt()); err != nil {
		return interfaces.CertificateStatus{}, normalizeRecordReadError(err)
	}
	if len(out) != 2 {
		return interfaces.CertificateStatus{}, fmt.Errorf("%w: unexpected certificate record shape", interfaces.ErrReadDecodeFailure)
	}

	return interfaces.CertificateStatus{
		Exists:   *abi.ConvertType(out[0], new(bool)).(*bool),
		Approved: *abi.ConvertType(out[1], new(bool)).(*bool),
	}, nil
}

// transact submits a state-changing call and blocks until the transaction is
// mined or the bounded confirmation wait elapses. A submitted transaction is
// irrevocable; on timeout it may still confirm later.
func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	if c.auth == nil {
		return common.Hash{}, fmt.Errorf("%w: no authorized transactor available", interfaces.ErrConnectionUnavailable)
	}

	opts := *c.auth
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, method, args...)
	if err != nil {
		return common.Hash{}, normalizeSubmitError(method, err)
	}

	c.log.Debug("Transaction submitted",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()))

	return c.waitConfirmed(ctx, method, tx)
}

func (c *Client) waitConfirmed(ctx context.Context, method string, tx *types.Transaction) (common.Hash, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return tx.Hash(), fmt.Errorf("%w: %s tx %s not confirmed within %s",
				interfaces.ErrTransactionTimeout, method, tx.Hash().Hex(), c.confirmTimeout)
		}
		return tx.Hash(), fmt.Errorf("waiting for %s confirmation: %w", method, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash(), fmt.Errorf("%w: %s tx %s reverted in block %d",
			interfaces.ErrTransactionReverted, method, tx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}

	c.log.Debug("Transaction confirmed",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()))

	return tx.Hash(), nil
}

func (c *Client) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}
