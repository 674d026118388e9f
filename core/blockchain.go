package core

import (
	"fmt"
	"sync"

	"github.com/mana-ethereum/mana/core/rawdb"
	"github.com/mana-ethereum/mana/core/state"
	"github.com/mana-ethereum/mana/core/types"
	"github.com/mana-ethereum/mana/rlp"
)

// Blockchain is the fork-choice block tree: it persists every accepted
// block, tracks the post-state of each, and answers "best block" as the
// block maximizing (number, difficulty) lexicographically. Insertion is
// serialized by a single writer lock; readers observe a consistent best
// pointer. Every stored block is wholly valid, and every stored block's
// parent hash names either a stored block or the zero hash at genesis.
type Blockchain struct {
	mu        sync.RWMutex
	config    *ChainConfig
	db        rawdb.Database
	validator *BlockValidator

	blocks map[types.Hash]*types.Block
	states map[types.Hash]*state.AccountStore

	genesis   *types.Block
	bestBlock *types.Block
}

// NewBlockchain creates a block tree rooted at the given genesis block and
// its populated state.
func NewBlockchain(config *ChainConfig, validator *BlockValidator, genesis *types.Block, genesisState *state.AccountStore, db rawdb.Database) (*Blockchain, error) {
	bc := &Blockchain{
		config:    config,
		db:        db,
		validator: validator,
		blocks:    make(map[types.Hash]*types.Block),
		states:    make(map[types.Hash]*state.AccountStore),
		genesis:   genesis,
		bestBlock: genesis,
	}
	bc.blocks[genesis.Hash()] = genesis
	bc.states[genesis.Hash()] = genesisState
	if err := bc.persist(genesis); err != nil {
		return nil, err
	}
	return bc, nil
}

// VerifyAndAdd resolves the block's parent, optionally runs the holistic
// validation, persists the block, and updates the best pointer. A rejected
// block leaves all persistent state unchanged.
func (bc *Blockchain) VerifyAndAdd(block *types.Block, validate bool) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hash := block.Hash()
	if _, known := bc.blocks[hash]; known {
		return nil
	}

	var parent *types.Block
	if block.NumberU64() == 0 {
		parent = nil
	} else if block.ParentHash().IsZero() {
		return ErrNonGenesisBlockRequiresParent
	} else {
		parent = bc.blocks[block.ParentHash()]
		if parent == nil {
			return fmt.Errorf("%w: %s", ErrParentNotFound, block.ParentHash().Hex())
		}
	}

	var postState *state.AccountStore
	if parent != nil {
		parentState, ok := bc.states[parent.Hash()]
		if !ok {
			return fmt.Errorf("%w: no state for parent %s", ErrParentNotFound, parent.Hash().Hex())
		}
		if validate {
			reader := &treeReader{bc: bc}
			if errs := bc.validator.ValidateBlock(block, parent.Header(), parentState, reader); len(errs) > 0 {
				return fmt.Errorf("invalid block %s: %v", hash.Hex(), errs)
			}
		}
		postState = parentState.Copy()
		if _, err := bc.validator.Process(block, postState); err != nil {
			return err
		}
	} else {
		postState = state.NewAccountStore(bc.db)
	}

	if err := bc.persist(block); err != nil {
		return err
	}
	bc.blocks[hash] = block
	bc.states[hash] = postState

	if betterBlock(block, bc.bestBlock) {
		bc.bestBlock = block
		if err := rawdb.WriteBestBlockHash(bc.db, hash); err != nil {
			return err
		}
	}
	return nil
}

// betterBlock reports whether a beats b on (number, difficulty).
func betterBlock(a, b *types.Block) bool {
	if a.NumberU64() != b.NumberU64() {
		return a.NumberU64() > b.NumberU64()
	}
	return a.Difficulty().Cmp(b.Difficulty()) > 0
}

// persist writes the block under its hash, the per-number secondary index,
// and the header/body records.
func (bc *Blockchain) persist(block *types.Block) error {
	hash := block.Hash()
	num := block.NumberU64()

	enc, err := block.EncodeRLP()
	if err != nil {
		return err
	}
	if err := rawdb.WriteBlock(bc.db, hash, enc); err != nil {
		return err
	}
	if err := rawdb.WriteNumberIndex(bc.db, num, hash); err != nil {
		return err
	}

	headerEnc, err := block.Header().EncodeRLP()
	if err != nil {
		return err
	}
	if err := rawdb.WriteHeader(bc.db, num, hash, headerEnc); err != nil {
		return err
	}
	bodyEnc, err := encodeBody(block)
	if err != nil {
		return err
	}
	return rawdb.WriteBody(bc.db, num, hash, bodyEnc)
}

// treeReader exposes block lookups to the validator without re-entering
// the tree's lock.
type treeReader struct{ bc *Blockchain }

func (r *treeReader) GetBlock(hash types.Hash) *types.Block {
	return r.bc.getBlock(hash)
}

// encodeBody serializes the block body as [transactions, ommers].
func encodeBody(block *types.Block) ([]byte, error) {
	var txsPayload []byte
	for _, tx := range block.Transactions() {
		enc, err := tx.EncodeRLP()
		if err != nil {
			return nil, err
		}
		txsPayload = append(txsPayload, enc...)
	}
	var ommersPayload []byte
	for _, ommer := range block.Uncles() {
		enc, err := ommer.EncodeRLP()
		if err != nil {
			return nil, err
		}
		ommersPayload = append(ommersPayload, enc...)
	}
	body := append(rlp.WrapList(txsPayload), rlp.WrapList(ommersPayload)...)
	return rlp.WrapList(body), nil
}

// GetBlock retrieves a block by hash, consulting the cache then the store.
// An undecodable stored block is unrecoverable.
func (bc *Blockchain) GetBlock(hash types.Hash) *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.getBlock(hash)
}

func (bc *Blockchain) getBlock(hash types.Hash) *types.Block {
	if block, ok := bc.blocks[hash]; ok {
		return block
	}
	enc, err := rawdb.ReadBlock(bc.db, hash)
	if err != nil {
		return nil
	}
	block, err := types.DecodeBlockRLP(enc)
	if err != nil {
		panic(fmt.Errorf("%w: %s: %v", ErrDecodingError, hash.Hex(), err))
	}
	return block
}

// GetBlockByNumber retrieves the accepted block at the given height.
func (bc *Blockchain) GetBlockByNumber(number uint64) *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	hash, err := rawdb.ReadNumberIndex(bc.db, number)
	if err != nil {
		return nil
	}
	return bc.getBlock(hash)
}

// BestBlock returns the block maximizing (number, difficulty) among all
// blocks ever accepted.
func (bc *Blockchain) BestBlock() *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.bestBlock
}

// Genesis returns the genesis block.
func (bc *Blockchain) Genesis() *types.Block { return bc.genesis }

// Config returns the chain configuration.
func (bc *Blockchain) Config() *ChainConfig { return bc.config }

// StateAt returns an independent copy of the world state after the given
// block, or nil if the block is unknown.
func (bc *Blockchain) StateAt(hash types.Hash) *state.AccountStore {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if st, ok := bc.states[hash]; ok {
		return st.Copy()
	}
	return nil
}

// HasBlock checks whether a block with the given hash was accepted.
func (bc *Blockchain) HasBlock(hash types.Hash) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if _, ok := bc.blocks[hash]; ok {
		return true
	}
	return rawdb.HasBlock(bc.db, hash)
}
