package database

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// GenesisPreviousHash is the previous hash recorded by the genesis block.
const GenesisPreviousHash = "0"

// =============================================================================

// BlockBody represents the content of a block that is fixed before the
// proof of work search begins.
type BlockBody struct {
	Index        uint64
	TimeStamp    uint64
	Transactions []Tx
	PreviousHash string
}

// Hash returns the digest of the body combined with the specified proof. This
// is the same value a block built from this body and proof carries as its hash.
func (bb BlockBody) Hash(proof uint64) string {
	trans := bb.Transactions
	if trans == nil {
		trans = []Tx{}
	}

	// The fields are declared in key order so the JSON encoding is canonical.
	content := struct {
		Index        uint64 `json:"index"`
		PreviousHash string `json:"previous_hash"`
		Proof        uint64 `json:"proof"`
		TimeStamp    uint64 `json:"timestamp"`
		Transactions []Tx   `json:"transactions"`
	}{
		Index:        bb.Index,
		PreviousHash: bb.PreviousHash,
		Proof:        proof,
		TimeStamp:    bb.TimeStamp,
		Transactions: trans,
	}

	return Hash(content)
}

// =============================================================================

// Block represents one step in the chain. A block is immutable once it has
// been constructed. Decoding a block from JSON is the only way to set the
// hash without computing it, since that form is trusted until validated.
type Block struct {
	Index        uint64 `json:"index"`
	TimeStamp    uint64 `json:"timestamp"`
	Transactions []Tx   `json:"transactions"`
	Proof        uint64 `json:"proof"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
}

// NewBlock constructs a block from the body and proof and computes its hash.
func NewBlock(body BlockBody, proof uint64) Block {
	trans := make([]Tx, len(body.Transactions))
	copy(trans, body.Transactions)

	return Block{
		Index:        body.Index,
		TimeStamp:    body.TimeStamp,
		Transactions: trans,
		Proof:        proof,
		PreviousHash: body.PreviousHash,
		Hash:         body.Hash(proof),
	}
}

// NewGenesisBlock constructs the first block of every chain.
func NewGenesisBlock(timeStamp uint64) Block {
	body := BlockBody{
		Index:        0,
		TimeStamp:    timeStamp,
		PreviousHash: GenesisPreviousHash,
	}

	return NewBlock(body, 0)
}

// Body returns the body of the block.
func (b Block) Body() BlockBody {
	return BlockBody{
		Index:        b.Index,
		TimeStamp:    b.TimeStamp,
		Transactions: b.Transactions,
		PreviousHash: b.PreviousHash,
	}
}

// ComputeHash recalculates the hash from the content of the block.
func (b Block) ComputeHash() string {
	return b.Body().Hash(b.Proof)
}

// IsGenesis reports whether the block has the shape of a genesis block.
func (b Block) IsGenesis() bool {
	return b.Index == 0 && b.PreviousHash == GenesisPreviousHash
}

// ValidateBlock takes a block and validates it can follow the parent block
// in a chain solved at the specified difficulty.
func (b Block) ValidateBlock(parent Block, difficulty uint) error {
	if b.Index != parent.Index+1 {
		return fmt.Errorf("blk[%d]: %w: exp %d", b.Index, ErrInvalidIndex, parent.Index+1)
	}

	if b.PreviousHash != parent.Hash {
		return fmt.Errorf("blk[%d]: %w: got %s, exp %s", b.Index, ErrInvalidLink, b.PreviousHash, parent.Hash)
	}

	hash := b.ComputeHash()
	if b.Hash != hash {
		return fmt.Errorf("blk[%d]: %w: got %s, exp %s", b.Index, ErrInvalidHash, b.Hash, hash)
	}

	if !IsHashSolved(hash, difficulty) {
		return fmt.Errorf("blk[%d]: %w: hash %s, difficulty %d", b.Index, ErrInvalidProof, hash, difficulty)
	}

	return nil
}

// =============================================================================

// Hash returns the hex encoded sha256 digest of the JSON encoding of the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(data)
	return common.Bytes2Hex(hash[:])
}

// IsHashSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of leading 0's.
func IsHashSolved(hash string, difficulty uint) bool {
	if uint(len(hash)) < difficulty {
		return false
	}

	for i := uint(0); i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}

	return true
}
