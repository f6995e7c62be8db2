package core

import "errors"

// Validation errors, reported before any state mutation.
var (
	// ErrTxGasExceedsBlock is returned when a transaction's gas limit is
	// larger than the block's.
	ErrTxGasExceedsBlock = errors.New("core: tx gas limit exceeds block gas limit")

	// ErrInsufficientFunds is returned when the sender cannot cover
	// gasLimit*gasPrice + value.
	ErrInsufficientFunds = errors.New("core: insufficient funds for gas * price + value")

	// ErrBadNonce is returned when the transaction nonce does not match
	// the sender account nonce.
	ErrBadNonce = errors.New("core: invalid nonce")

	// ErrIntrinsicGasTooLow is returned when the gas limit does not cover
	// the intrinsic cost of the transaction.
	ErrIntrinsicGasTooLow = errors.New("core: intrinsic gas exceeds gas limit")

	// ErrNilTransaction is returned when Options carries no transaction.
	ErrNilTransaction = errors.New("core: nil transaction")
)
