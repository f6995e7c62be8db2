package core

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/corevm/corevm/core/state"
	"github.com/corevm/corevm/core/types"
	"github.com/corevm/corevm/core/vm"
	"github.com/corevm/corevm/crypto"
	"github.com/corevm/corevm/log"
)

// CallParams describes one CALL or CREATE frame.
type CallParams struct {
	Caller types.Address

	// CallerAccount is the caller's current record; gas was already
	// charged upstream, this frame debits Value from it.
	CallerAccount *types.Account

	// To is the call target; nil requests contract creation.
	To *types.Address

	Value *uint256.Int
	Data  []byte

	// Code overrides the executed code for CALLCODE/DELEGATECALL
	// semantics; when nil the code is resolved from the target.
	Code []byte

	GasLimit uint64
	GasPrice *uint256.Int
	Origin   types.Address
	Block    *types.Block
	Depth    int

	// Suicides is the set shared by all frames of the transaction.
	Suicides mapset.Set[types.Address]
}

// CallResult is the outcome of one frame.
type CallResult struct {
	GasUsed        uint64
	FromAccount    *types.Account
	ToAccount      *types.Account
	CreatedAddress *types.Address
	VM             *vm.ExecResult
}

// CallExecutor runs CALL/CREATE frames against a state manager. A frame
// spans one savepoint: an exceptional halt rolls back the value transfer,
// account creation and every nested effect in one step, while gas consumed
// stays charged.
type CallExecutor struct {
	state  *state.StateManager
	interp vm.Interpreter
	logger *log.Logger
}

// NewCallExecutor creates a call executor. interp may be nil when only
// value transfers and precompiles will ever run.
func NewCallExecutor(sm *state.StateManager, interp vm.Interpreter) *CallExecutor {
	return &CallExecutor{
		state:  sm,
		interp: interp,
		logger: log.Default().Module("call"),
	}
}

// Run executes one frame.
func (ex *CallExecutor) Run(p *CallParams) (*CallResult, error) {
	value := p.Value
	if value == nil {
		value = new(uint256.Int)
	}
	block := p.Block
	if block == nil {
		block = types.DefaultBlock()
	}

	from := p.CallerAccount.Copy()
	if from.Balance.Lt(value) {
		// Balance sufficiency is the caller's contract; an overdraw here
		// is a bug upstream, not a frame exception.
		return nil, fmt.Errorf("%w: caller %s", state.ErrBalanceUnderflow, p.Caller)
	}

	// The savepoint brackets the whole frame: debit, credit, creation and
	// nested effects revert together on an exceptional halt.
	ex.state.Checkpoint()

	// Suicides recorded by this frame (or below it) roll back with the
	// savepoint.
	if p.Suicides != nil {
		snapshot := p.Suicides.Clone()
		ex.state.OnRevert(func() {
			p.Suicides.Clear()
			p.Suicides.Append(snapshot.ToSlice()...)
		})
	}

	abort := func(err error) (*CallResult, error) {
		if rerr := ex.state.Revert(); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}

	// Debit the caller.
	from.Balance.Sub(from.Balance, value)
	ex.state.PutAccount(p.Caller, from)

	// Resolve the target: derive a fresh address for creation, load the
	// recipient otherwise.
	var (
		created *types.Address
		toAddr  types.Address
		toAcct  *types.Account
		code    = p.Code
		data    = p.Data
	)
	if p.To == nil {
		// The caller's nonce was bumped before this frame ran; the
		// address derives from the value the transaction was signed
		// against.
		nonce := from.Nonce
		if nonce > 0 {
			nonce--
		}
		addr := crypto.CreateAddress(p.Caller, nonce)
		created = &addr
		toAddr = addr
		toAcct = types.NewAccount()
		code = p.Data
		data = nil
	} else {
		toAddr = *p.To
		var err error
		toAcct, err = ex.state.GetAccount(toAddr)
		if err != nil {
			return abort(err)
		}
	}

	// Credit the recipient.
	toAcct.Balance.Add(toAcct.Balance, value)
	ex.state.PutAccount(toAddr, toAcct)

	// Select the code to run: an explicit override wins, then the
	// precompile table, then the recipient's own code. No code means a
	// pure value transfer with no dispatch.
	var (
		precomp  vm.PrecompiledContract
		compiled bool
	)
	if code == nil && created == nil {
		if pc, ok := vm.Precompiled(toAddr); ok {
			precomp = pc
			compiled = true
		} else if toAcct.IsContract() {
			var err error
			code, err = ex.state.GetCode(toAddr)
			if err != nil {
				return abort(err)
			}
		}
	}

	var res *vm.ExecResult
	switch {
	case compiled:
		res = vm.RunJIT(precomp, &vm.ExecOpts{
			Data:     data,
			GasLimit: p.GasLimit,
			GasPrice: p.GasPrice,
			Value:    value,
			Account:  toAcct.Copy(),
			Address:  toAddr,
			Origin:   p.Origin,
			Caller:   p.Caller,
			Block:    block,
			Depth:    p.Depth,
			Suicides: p.Suicides,
		})
	case len(code) > 0:
		if ex.interp == nil {
			return abort(vm.ErrNoInterpreter)
		}
		var err error
		res, err = ex.interp.RunCode(&vm.ExecOpts{
			Code:     code,
			Data:     data,
			GasLimit: p.GasLimit,
			GasPrice: p.GasPrice,
			Value:    value,
			Account:  toAcct.Copy(),
			Address:  toAddr,
			Origin:   p.Origin,
			Caller:   p.Caller,
			Block:    block,
			Depth:    p.Depth,
			Suicides: p.Suicides,
		})
		if err != nil {
			// System failure, not a frame exception.
			return abort(err)
		}
	default:
		res = &vm.ExecResult{Account: toAcct.Copy()}
	}
	if res.Account == nil {
		res.Account = toAcct.Copy()
	}
	if res.Suicides == nil {
		res.Suicides = p.Suicides
	}

	// Contract-creation tail: a failed creation that kept no funds
	// disappears; a successful one pays for its returned code, and code
	// that cannot be paid for is dropped without failing the frame.
	deleteCreated := false
	if created != nil {
		if res.Failed() && res.Account.Balance.IsZero() {
			deleteCreated = true
		} else {
			returnFee := res.GasUsed + uint64(len(res.ReturnValue))*CreateDataGas
			if returnFee <= p.GasLimit {
				res.GasUsed = returnFee
			} else {
				res.ReturnValue = nil
			}
		}
	}

	if res.Failed() {
		ex.logger.Debug("frame reverted", "to", toAddr, "depth", p.Depth, "err", res.Err)
		// The transferred value returns to the caller; everything the
		// frame touched rolls back with the savepoint.
		from.Balance.Add(from.Balance, value)
		if err := ex.state.Revert(); err != nil {
			return nil, err
		}
		ex.state.PutAccount(p.Caller, from)
		if deleteCreated {
			ex.state.DeleteAccount(*created)
		}
	} else {
		if err := ex.state.Commit(); err != nil {
			return nil, err
		}
		// Publish the recipient record the interpreter returned, then
		// install newly deployed code on top of it.
		ex.state.PutAccount(toAddr, res.Account)
		if created != nil && len(res.ReturnValue) > 0 {
			if err := ex.state.SetCode(*created, res.ReturnValue); err != nil {
				return nil, err
			}
		}
	}

	toFinal, err := ex.state.GetAccount(toAddr)
	if err != nil {
		return nil, err
	}

	return &CallResult{
		GasUsed:        res.GasUsed,
		FromAccount:    from,
		ToAccount:      toFinal,
		CreatedAddress: created,
		VM:             res,
	}, nil
}
