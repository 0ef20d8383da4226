package database

import "errors"

// Set of errors returned when transactions are submitted to the ledger.
var (
	ErrInvalidAmount       = errors.New("transaction amount must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAddress      = errors.New("invalid address format")
	ErrDuplicateTx         = errors.New("transaction already exists")
)

// Set of errors returned when blocks and chains are validated.
var (
	ErrInvalidGenesis = errors.New("invalid genesis block")
	ErrInvalidIndex   = errors.New("block index is not the next index")
	ErrInvalidLink    = errors.New("previous hash does not match parent block")
	ErrInvalidHash    = errors.New("block hash does not match block content")
	ErrInvalidProof   = errors.New("block proof does not solve the puzzle")
	ErrStaleBlock     = errors.New("block index is already part of the chain")
	ErrChainAhead     = errors.New("block index is ahead of the chain, start resync")
	ErrChainNotLonger = errors.New("candidate chain is not longer than the current chain")
)

// ErrSerialization is returned when a snapshot or block can't be encoded
// or decoded.
var ErrSerialization = errors.New("serialization error")
