// Package vm defines the contract between the execution core and the
// bytecode interpreter, and implements the native precompiled contracts.
// The interpreter itself is a supplied capability; the core dispatches
// interpreted code through the Interpreter interface and precompiled code
// through RunJIT.
package vm

import (
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/corevm/corevm/core/types"
)

var (
	// ErrOutOfGas signals that a frame exhausted its gas allowance.
	ErrOutOfGas = errors.New("vm: out of gas")

	// ErrNoInterpreter is returned when a frame needs bytecode execution
	// but no interpreter capability was supplied.
	ErrNoInterpreter = errors.New("vm: no interpreter configured")
)

// ExecOpts carries everything one frame of execution needs.
type ExecOpts struct {
	Code     []byte
	Data     []byte
	GasLimit uint64
	GasPrice *uint256.Int
	Value    *uint256.Int

	// Account is the recipient account record; the interpreter returns
	// its (possibly modified) final version on the result.
	Account *types.Account

	Address types.Address // executing contract address
	Origin  types.Address // transaction origin
	Caller  types.Address

	Block *types.Block
	Depth int

	// Suicides is shared across every frame of one transaction and is
	// append-only during interpretation.
	Suicides mapset.Set[types.Address]
}

// ExecResult is what a frame of execution produced. A populated Err means
// the frame reverted — a normal outcome, not a system failure; system
// failures travel on the error return of the dispatch itself.
type ExecResult struct {
	Account     *types.Account
	GasUsed     uint64
	GasRefund   uint64
	ReturnValue []byte
	Logs        []*types.Log
	Suicides    mapset.Set[types.Address]
	Err         error
}

// Failed reports whether the frame halted exceptionally.
func (r *ExecResult) Failed() bool {
	return r.Err != nil
}

// Interpreter executes EVM bytecode. Implementations receive the state
// manager out of band and may recurse into the call executor for nested
// frames; nested savepoints must stay strictly nested.
type Interpreter interface {
	RunCode(opts *ExecOpts) (*ExecResult, error)
}

// RunJIT executes a precompiled contract natively. The precompile's cost
// schedule is charged here; an allowance below the cost consumes the whole
// allowance and reverts the frame.
func RunJIT(p PrecompiledContract, opts *ExecOpts) *ExecResult {
	res := &ExecResult{Account: opts.Account}
	cost := p.RequiredGas(opts.Data)
	if cost > opts.GasLimit {
		res.GasUsed = opts.GasLimit
		res.Err = ErrOutOfGas
		return res
	}
	out, err := p.Run(opts.Data)
	if err != nil {
		res.GasUsed = opts.GasLimit
		res.Err = err
		return res
	}
	res.GasUsed = cost
	res.ReturnValue = out
	return res
}
