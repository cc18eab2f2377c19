package database

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/atomic"
)

// checkEvery is the number of attempts a mining worker makes between checks
// for cancellation.
const checkEvery = 1024

// maxDifficulty is the largest difficulty a 256 bit hash can satisfy.
const maxDifficulty = 256

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	PrevBlockHash string `json:"prev_hash"`   // Bitcoin: Hash of the previous block in the chain.
	MerkleRoot    string `json:"merkle_root"` // Bitcoin: Merkle tree root hash of the transaction ids.
	TimeStamp     uint64 `json:"timestamp"`   // Bitcoin: Time the block was mined.
	Difficulty    uint   `json:"difficulty"`  // Number of leading zero bits needed to solve the hash.
	Nonce         uint64 `json:"nonce"`       // Bitcoin: Value identified to solve the hash solution.
}

// Hash returns the unique hash for the header. Only the header is hashed so
// the chain can be checked with headers alone, the merkle root commits to
// the transactions.
func (bh BlockHeader) Hash() string {
	return signature.Hash(bh)
}

// Block represents a group of transactions batched together.
type Block struct {
	Number     uint64
	Header     BlockHeader
	MerkleTree *merkle.Tree[BlockTx]
}

// Hash returns the unique hash for the Block. The block before the first
// block is represented by the zero hash.
func (b Block) Hash() string {
	if b.Number == 0 {
		return signature.ZeroHash
	}

	return b.Header.Hash()
}

// Txs returns the transactions of the block in order.
func (b Block) Txs() []BlockTx {
	if b.MerkleTree == nil {
		return nil
	}

	return b.MerkleTree.Values()
}

// ValidateBlock takes a block and validates it can follow the previous
// block in the chain. The linkage, the proof of work, and the merkle
// commitment of the transactions are checked.
func (b Block) ValidateBlock(previousBlock Block, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Number)

	nextNumber := previousBlock.Number + 1
	if b.Number != nextNumber {
		return fmt.Errorf("%w: this block is not the next number, got %d, exp %d", ErrInvalidLinkage, b.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("%w: parent block hash doesn't match our known parent, got %s, exp %s", ErrInvalidLinkage, b.Header.PrevBlockHash, previousBlock.Hash())
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Number)

	hash := b.Hash()
	if !IsHashSolved(b.Header.Difficulty, hash) {
		return fmt.Errorf("%w: %s does not meet difficulty %d", ErrInvalidProofOfWork, hash, b.Header.Difficulty)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Number)

	return b.validateCommitment()
}

// validateCommitment recomputes the merkle root from the transactions and
// checks every recorded transaction id matches its content.
func (b Block) validateCommitment() error {
	txs := b.Txs()

	for _, tx := range txs {
		if id := tx.ID(); tx.TxID != id {
			return fmt.Errorf("%w: recorded txid %s, computed %s", ErrInvalidCommitment, tx.TxID, id)
		}
	}

	tree, err := merkle.NewTree(txs)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCommitment, err)
	}

	if b.Header.MerkleRoot != tree.RootHex() {
		return fmt.Errorf("%w: merkle root does not match transactions, got %s, exp %s", ErrInvalidCommitment, tree.RootHex(), b.Header.MerkleRoot)
	}

	return nil
}

// =============================================================================

// IsHashSolved checks the hash, read as a big endian unsigned integer, is
// strictly less than 2^(256-difficulty). A difficulty of zero accepts any
// hash and a difficulty above 256 can never be solved.
func IsHashSolved(difficulty uint, hash string) bool {
	if difficulty > maxDifficulty {
		return false
	}

	b, err := signature.ToHashBytes(hash)
	if err != nil {
		return false
	}

	target := new(big.Int).Lsh(big.NewInt(1), maxDifficulty-difficulty)
	value := new(big.Int).SetBytes(b)

	return value.Cmp(target) < 0
}

// =============================================================================

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	PrevBlock  Block
	Difficulty uint
	Txs        []BlockTx
	Workers    int
	Attempts   *atomic.Uint64
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. The search runs until a solution is
// found or the context is cancelled. With more than one worker the nonce
// space is striped across the workers and the first solution wins.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	if args.Difficulty > maxDifficulty {
		return Block{}, fmt.Errorf("difficulty %d can never be solved", args.Difficulty)
	}

	if args.EvHandler == nil {
		args.EvHandler = func(string, ...any) {}
	}

	if args.Attempts == nil {
		args.Attempts = atomic.NewUint64(0)
	}

	workers := args.Workers
	if workers < 1 {
		workers = 1
	}

	// Construct a merkle tree from the transactions for this block. The
	// root of this tree will be part of the block to be mined.
	tree, err := merkle.NewTree(args.Txs)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Number: args.PrevBlock.Number + 1,
		Header: BlockHeader{
			PrevBlockHash: args.PrevBlock.Hash(),
			MerkleRoot:    tree.RootHex(),
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			Difficulty:    args.Difficulty,
		},
		MerkleTree: tree,
	}

	header, err := performPOW(ctx, nb.Header, workers, args.Attempts, args.EvHandler)
	if err != nil {
		return Block{}, err
	}
	nb.Header = header

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for the header.
func performPOW(ctx context.Context, header BlockHeader, workers int, attempts *atomic.Uint64, ev func(v string, args ...any)) (BlockHeader, error) {
	ev("database: PerformPOW: MINING: started: workers[%d]", workers)
	defer ev("database: PerformPOW: MINING: completed")

	// Choose a random starting point for the nonce. After this, each worker
	// moves through its own stripe of the nonce space.
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return BlockHeader{}, err
	}
	start := binary.BigEndian.Uint64(seed[:])

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	solved := make(chan BlockHeader, workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := range workers {
		go func() {
			defer wg.Done()

			bh := header
			bh.Nonce = start + uint64(w)

			for n := uint64(1); ; n++ {
				if n%checkEvery == 0 {
					attempts.Add(checkEvery)
					if ctx.Err() != nil {
						return
					}
				}

				if IsHashSolved(bh.Difficulty, bh.Hash()) {
					solved <- bh
					cancel()
					return
				}

				bh.Nonce += uint64(workers)
			}
		}()
	}

	wg.Wait()

	select {
	case bh := <-solved:
		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", bh.PrevBlockHash, bh.Hash())
		ev("database: PerformPOW: MINING: attempts[%d]", attempts.Load())
		return bh, nil

	default:
		ev("database: PerformPOW: MINING: CANCELLED")
		return BlockHeader{}, fmt.Errorf("%w: %s", ErrMiningCancelled, ctx.Err())
	}
}

// =============================================================================

// BlockData represents what is written to storage. The hash is recorded
// with the header so the chain can be read without recomputing it.
type BlockData struct {
	Number uint64      `json:"number"`
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"header"`
	Txs    []BlockTx   `json:"txs"`
}

// NewBlockData constructs the value to serialize to storage.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Number: block.Number,
		Hash:   block.Hash(),
		Header: block.Header,
		Txs:    block.Txs(),
	}
}

// ToBlock converts a BlockData into a Block. The recorded hash must match
// the hash of the recorded header.
func ToBlock(blockData BlockData) (Block, error) {
	if blockData.Number == 0 {
		return Block{}, fmt.Errorf("%w: block number zero", ErrMalformed)
	}

	if hash := blockData.Header.Hash(); blockData.Hash != hash {
		return Block{}, fmt.Errorf("%w: recorded hash %s, computed %s", ErrInvalidLinkage, blockData.Hash, hash)
	}

	if _, err := hexutil.Decode(blockData.Header.MerkleRoot); err != nil {
		return Block{}, fmt.Errorf("%w: merkle root: %s", ErrMalformed, err)
	}

	tree, err := merkle.NewTree(blockData.Txs)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Number:     blockData.Number,
		Header:     blockData.Header,
		MerkleTree: tree,
	}

	return nb, nil
}
