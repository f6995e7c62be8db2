package types

import "github.com/holiman/uint256"

// Transaction carries one signed transaction as seen by the execution core.
// Signature recovery happens upstream; From is the recovered sender.
type Transaction struct {
	Nonce    uint64
	GasPrice *uint256.Int
	GasLimit uint64
	To       *Address // nil means contract creation
	Value    *uint256.Int
	Data     []byte
	From     Address
}

// IsContractCreation reports whether the transaction deploys a contract.
func (tx *Transaction) IsContractCreation() bool {
	return tx.To == nil
}

// Cost returns the maximum amount the sender can be charged:
// gasLimit * gasPrice + value.
func (tx *Transaction) Cost() *uint256.Int {
	cost := new(uint256.Int).SetUint64(tx.GasLimit)
	if tx.GasPrice != nil {
		cost.Mul(cost, tx.GasPrice)
	} else {
		cost.Clear()
	}
	if tx.Value != nil {
		cost.Add(cost, tx.Value)
	}
	return cost
}
