// state_transition.go implements the outer transaction frame: validation,
// gas pre-charge, call dispatch, capped refund, miner reward, suicide
// sweep and the final flush.
package core

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/corevm/corevm/core/state"
	"github.com/corevm/corevm/core/types"
	"github.com/corevm/corevm/core/vm"
	"github.com/corevm/corevm/log"
)

// Observer receives hooks around transaction execution. Either hook may
// fail the transaction; the error propagates unchanged and the remaining
// stages are skipped.
type Observer interface {
	BeforeTx(tx *types.Transaction) error
	AfterTx(results *Results) error
}

// Options configures one transaction run.
type Options struct {
	// Tx is the transaction to execute. Required.
	Tx *types.Transaction

	// Block supplies the execution context; nil synthesises a block whose
	// gas limit exceeds any transaction.
	Block *types.Block

	// SkipNonce disables the sender nonce check.
	SkipNonce bool

	// SkipCacheWarming leaves the account cache untouched: no bulk
	// pre-load of sender, recipient and coinbase, and no clear after the
	// flush. Nested frames always run in this mode.
	SkipCacheWarming bool

	// GasPool, when set, accounts this transaction against a shared block
	// gas budget.
	GasPool *GasPool

	// Observer receives the before/after hooks. Optional.
	Observer Observer
}

// Results is the record produced by a completed transaction.
type Results struct {
	GasUsed        uint64
	AmountSpent    *uint256.Int
	Bloom          types.Bloom
	FromAccount    *types.Account
	ToAccount      *types.Account
	CreatedAddress *types.Address
	VM             *vm.ExecResult
}

// TxExecutor applies transactions to a state manager.
type TxExecutor struct {
	state  *state.StateManager
	calls  *CallExecutor
	logger *log.Logger
}

// NewTxExecutor creates a transaction executor. interp is the bytecode
// interpreter capability; nil restricts execution to value transfers and
// precompiles.
func NewTxExecutor(sm *state.StateManager, interp vm.Interpreter) *TxExecutor {
	return &TxExecutor{
		state:  sm,
		calls:  NewCallExecutor(sm, interp),
		logger: log.Default().Module("executor"),
	}
}

// State returns the executor's state manager.
func (ex *TxExecutor) State() *state.StateManager { return ex.state }

// Calls returns the underlying call executor.
func (ex *TxExecutor) Calls() *CallExecutor { return ex.calls }

// Run executes one transaction. Validation failures abort before any state
// mutation; a frame exception is a normal outcome reported on the result's
// VM record.
func (ex *TxExecutor) Run(opts *Options) (*Results, error) {
	tx := opts.Tx
	if tx == nil {
		return nil, ErrNilTransaction
	}
	block := opts.Block
	if block == nil {
		block = types.DefaultBlock()
	}
	header := block.Header()

	if tx.GasLimit > header.GasLimit {
		return nil, fmt.Errorf("%w: tx %d, block %d", ErrTxGasExceedsBlock, tx.GasLimit, header.GasLimit)
	}

	if !opts.SkipCacheWarming {
		addrs := []types.Address{tx.From, header.Coinbase}
		if tx.To != nil {
			addrs = append(addrs, *tx.To)
		}
		if err := ex.state.Warm(addrs...); err != nil {
			return nil, err
		}
	}

	if opts.Observer != nil {
		if err := opts.Observer.BeforeTx(tx); err != nil {
			return nil, err
		}
	}

	from, err := ex.state.GetAccount(tx.From)
	if err != nil {
		return nil, err
	}
	if from.Balance.Lt(tx.Cost()) {
		return nil, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, tx.From, from.Balance, tx.Cost())
	}
	if !opts.SkipNonce && from.Nonce != tx.Nonce {
		return nil, fmt.Errorf("%w: tx %d, account %d", ErrBadNonce, tx.Nonce, from.Nonce)
	}

	basefee := IntrinsicGas(tx.Data, tx.IsContractCreation())
	if basefee > tx.GasLimit {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGasTooLow, tx.GasLimit, basefee)
	}
	frameGas := tx.GasLimit - basefee

	if opts.GasPool != nil {
		if err := opts.GasPool.SubGas(tx.GasLimit); err != nil {
			return nil, err
		}
	}

	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice = new(uint256.Int)
	}

	// Bump the nonce and charge the full gas allowance up front; the
	// unused portion comes back after execution.
	from.Nonce++
	upfront := new(uint256.Int).SetUint64(tx.GasLimit)
	upfront.Mul(upfront, gasPrice)
	from.Balance.Sub(from.Balance, upfront)
	ex.state.PutAccount(tx.From, from)

	suicides := mapset.NewSet[types.Address]()
	callRes, err := ex.calls.Run(&CallParams{
		Caller:        tx.From,
		CallerAccount: from,
		To:            tx.To,
		Value:         tx.Value,
		Data:          tx.Data,
		GasLimit:      frameGas,
		GasPrice:      gasPrice,
		Origin:        tx.From,
		Block:         block,
		Suicides:      suicides,
	})
	if err != nil {
		return nil, err
	}

	gasUsed := callRes.GasUsed + basefee
	if refund := callRes.VM.GasRefund; refund > 0 {
		gasUsed -= min(refund, gasUsed/2)
	}

	// Return the unused allowance to the sender.
	leftoverGas := tx.GasLimit - gasUsed
	if leftoverGas > 0 {
		leftover := new(uint256.Int).SetUint64(leftoverGas)
		leftover.Mul(leftover, gasPrice)
		if err := ex.state.AddBalance(tx.From, leftover); err != nil {
			return nil, err
		}
	}

	// Pay the miner.
	minerFee := new(uint256.Int).SetUint64(gasUsed)
	minerFee.Mul(minerFee, gasPrice)
	if err := ex.state.AddBalance(header.Coinbase, minerFee); err != nil {
		return nil, err
	}

	// Self-destructed accounts leave the state at end of transaction.
	for _, addr := range suicides.ToSlice() {
		ex.state.DeleteAccount(addr)
	}

	if err := ex.state.CommitContracts(); err != nil {
		return nil, err
	}

	results := &Results{
		GasUsed:        gasUsed,
		AmountSpent:    minerFee,
		Bloom:          types.LogsBloom(callRes.VM.Logs),
		FromAccount:    callRes.FromAccount,
		ToAccount:      callRes.ToAccount,
		CreatedAddress: callRes.CreatedAddress,
		VM:             callRes.VM,
	}

	if opts.Observer != nil {
		if err := opts.Observer.AfterTx(results); err != nil {
			return nil, err
		}
	}

	if err := ex.state.Flush(); err != nil {
		return nil, err
	}
	if !opts.SkipCacheWarming {
		ex.state.Clear()
	}

	if opts.GasPool != nil {
		opts.GasPool.AddGas(leftoverGas)
	}

	ex.logger.Debug("tx executed", "from", tx.From, "gasUsed", gasUsed, "create", tx.IsContractCreation())
	return results, nil
}
