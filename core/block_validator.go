package core

import (
	"fmt"
	"math/big"

	"github.com/mana-ethereum/mana/core/state"
	"github.com/mana-ethereum/mana/core/types"
)

const (
	// MaxExtraDataSize is the maximum allowed extra data in a block header.
	MaxExtraDataSize = 32

	// MaxOmmerDepth is how many generations back an ommer's parent may sit.
	MaxOmmerDepth = 7

	// MaxOmmerCount is the maximum number of ommers per block.
	MaxOmmerCount = 2
)

// BlockReader resolves a stored block by hash, for ommer ancestry walks.
type BlockReader interface {
	GetBlock(hash types.Hash) *types.Block
}

// ProcessResult holds the outputs of replaying a block's transactions and
// rewards against a parent state.
type ProcessResult struct {
	Receipts  []*types.Receipt
	GasUsed   uint64
	Logs      []*types.Log
	Bloom     types.Bloom
	StateRoot types.Hash

	// Skipped records transactions cancelled by pre-flight validation,
	// keyed by index. They are omitted from the receipts list.
	Skipped map[int]error
}

// BlockValidator reproduces a block's state, transactions, receipts and
// ommers roots from first principles and compares them to the declared
// header.
type BlockValidator struct {
	config   *ChainConfig
	executor *Executor
}

// NewBlockValidator creates a validator executing with the given executor.
func NewBlockValidator(config *ChainConfig, executor *Executor) *BlockValidator {
	return &BlockValidator{config: config, executor: executor}
}

// CheckGasLimit verifies the child gas limit against the parent's: the
// change is bounded by parent/gas_limit_bound_divisor and the result must
// not fall below the minimum.
func CheckGasLimit(config *ChainConfig, parentGasLimit, gasLimit uint64) error {
	if gasLimit < config.MinGasLimit {
		return fmt.Errorf("%w: %d below minimum %d", ErrInvalidGasLimit, gasLimit, config.MinGasLimit)
	}
	diff := gasLimit
	if gasLimit < parentGasLimit {
		diff = parentGasLimit - gasLimit
	} else {
		diff = gasLimit - parentGasLimit
	}
	limit := parentGasLimit / config.GasLimitBoundDivisor
	if diff >= limit {
		return fmt.Errorf("%w: change %d exceeds bound %d", ErrInvalidGasLimit, diff, limit)
	}
	return nil
}

// DeriveChildHeader builds the expected child of parent using the incoming
// block's beneficiary, timestamp, gas limit and extra data. Number,
// difficulty and parent hash are computed, never taken from the block.
func DeriveChildHeader(config *ChainConfig, parent *types.Header, beneficiary types.Address, time uint64, gasLimit uint64, extra []byte) (*types.Header, error) {
	if time <= parent.Time {
		return nil, fmt.Errorf("%w: child %d, parent %d", ErrChildTimestampInvalid, time, parent.Time)
	}
	if err := CheckGasLimit(config, parent.GasLimit, gasLimit); err != nil {
		return nil, err
	}
	return &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Coinbase:   beneficiary,
		Difficulty: CalcDifficulty(config, time, parent),
		Number:     new(big.Int).Add(parent.Number, big.NewInt(1)),
		GasLimit:   gasLimit,
		Time:       time,
		Extra:      extra,
	}, nil
}

// ValidateHeader checks the declared header's consensus fields against its
// parent. Every inconsistency is collected rather than short-circuited.
func (v *BlockValidator) ValidateHeader(header, parent *types.Header) []error {
	var errs []error

	expectedNumber := new(big.Int).Add(parent.Number, big.NewInt(1))
	if header.Number == nil || header.Number.Cmp(expectedNumber) != 0 {
		errs = append(errs, fmt.Errorf("%w: want %v, got %v", ErrInvalidNumber, expectedNumber, header.Number))
	}

	if header.Time <= parent.Time {
		errs = append(errs, fmt.Errorf("%w: child %d, parent %d", ErrChildTimestampInvalid, header.Time, parent.Time))
	} else {
		expectedDifficulty := CalcDifficulty(v.config, header.Time, parent)
		if header.Difficulty == nil || header.Difficulty.Cmp(expectedDifficulty) != 0 {
			errs = append(errs, fmt.Errorf("%w: want %v, got %v", ErrInvalidDifficulty, expectedDifficulty, header.Difficulty))
		}
	}

	if err := CheckGasLimit(v.config, parent.GasLimit, header.GasLimit); err != nil {
		errs = append(errs, err)
	}
	if header.GasUsed > header.GasLimit {
		errs = append(errs, fmt.Errorf("%w: %d > %d", ErrInvalidGasUsed, header.GasUsed, header.GasLimit))
	}
	if len(header.Extra) > MaxExtraDataSize {
		errs = append(errs, fmt.Errorf("%w: %d > %d", ErrExtraDataTooLong, len(header.Extra), MaxExtraDataSize))
	}
	if err := ValidateDAOHeaderExtraData(v.config, header); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// ValidateOmmers checks each ommer header: it must be a valid header for
// its own parent, share an ancestor with the block within MaxOmmerDepth
// generations, not itself be an ancestor of the block, and not be included
// twice.
func (v *BlockValidator) ValidateOmmers(block *types.Block, reader BlockReader) error {
	ommers := block.Uncles()
	if len(ommers) == 0 {
		return nil
	}
	if len(ommers) > MaxOmmerCount {
		return fmt.Errorf("%w: %d ommers", ErrInvalidOmmers, len(ommers))
	}

	// Collect ancestors up to MaxOmmerDepth back, and the ommers those
	// ancestors already included.
	ancestors := make(map[types.Hash]*types.Header)
	included := make(map[types.Hash]struct{})
	parentHash := block.ParentHash()
	for i := 0; i < MaxOmmerDepth; i++ {
		ancestor := reader.GetBlock(parentHash)
		if ancestor == nil {
			break
		}
		ancestors[ancestor.Hash()] = ancestor.Header()
		for _, past := range ancestor.Uncles() {
			included[past.Hash()] = struct{}{}
		}
		parentHash = ancestor.ParentHash()
	}

	seen := make(map[types.Hash]struct{})
	for _, ommer := range ommers {
		hash := ommer.Hash()
		if _, dup := seen[hash]; dup {
			return fmt.Errorf("%w: duplicate ommer %s", ErrInvalidOmmers, hash.Hex())
		}
		seen[hash] = struct{}{}

		if _, isAncestor := ancestors[hash]; isAncestor {
			return fmt.Errorf("%w: ommer %s is an ancestor", ErrInvalidOmmers, hash.Hex())
		}
		if _, ok := included[hash]; ok {
			return fmt.Errorf("%w: ommer %s already included", ErrInvalidOmmers, hash.Hex())
		}
		ommerParent, ok := ancestors[ommer.ParentHash]
		if !ok {
			return fmt.Errorf("%w: ommer %s has no known recent ancestor", ErrInvalidOmmers, hash.Hex())
		}
		if errs := v.ValidateHeader(ommer, ommerParent); len(errs) > 0 {
			return fmt.Errorf("%w: ommer %s: %v", ErrInvalidOmmers, hash.Hex(), errs[0])
		}
	}
	return nil
}

// AccumulateRewards credits the beneficiary with the base reward plus an
// inclusion bonus per ommer, and each ommer's beneficiary with its depth-
// scaled share. Genesis receives no reward.
func AccumulateRewards(config *ChainConfig, staging *state.StagingDB, header *types.Header, ommers []*types.Header) error {
	if header.Number.Sign() == 0 {
		return nil
	}
	base := config.BlockReward(header.Number)
	if base.Sign() == 0 {
		return nil
	}

	reward := new(big.Int).Set(base)
	ommerBonus := new(big.Int).Div(base, big.NewInt(32))
	for _, ommer := range ommers {
		r := new(big.Int).Add(ommer.Number, big.NewInt(8))
		r.Sub(r, header.Number)
		r.Mul(r, base)
		r.Div(r, big.NewInt(8))
		if err := staging.AddWei(ommer.Coinbase, r); err != nil {
			return err
		}
		reward.Add(reward, ommerBonus)
	}
	return staging.AddWei(header.Coinbase, reward)
}

// Process replays a block's transactions and rewards on top of store,
// mutating it. Transactions failing pre-flight validation are skipped and
// recorded; EVM failures consume gas and still yield a receipt.
func (v *BlockValidator) Process(block *types.Block, store *state.AccountStore) (*ProcessResult, error) {
	header := block.Header()

	// The DAO recovery runs before any transaction of the fork block.
	if v.config.DAOForkSupport && v.config.IsDAOFork(header.Number) {
		staging := state.NewStagingDB(store)
		if err := ApplyDAOHardFork(v.config, staging); err != nil {
			return nil, err
		}
		if err := staging.Commit(); err != nil {
			return nil, err
		}
	}

	gasPool := new(GasPool).AddGas(header.GasLimit)
	result := &ProcessResult{Skipped: make(map[int]error)}

	for i, tx := range block.Transactions() {
		receipt, gasUsed, err := v.executor.ApplyTransaction(store, header, gasPool, tx, result.GasUsed)
		if err != nil {
			result.Skipped[i] = err
			continue
		}
		result.GasUsed += gasUsed
		result.Receipts = append(result.Receipts, receipt)
		result.Logs = append(result.Logs, receipt.Logs...)
	}

	staging := state.NewStagingDB(store)
	if err := AccumulateRewards(v.config, staging, header, block.Uncles()); err != nil {
		return nil, err
	}
	if err := staging.Commit(); err != nil {
		return nil, err
	}

	result.Bloom = types.CreateBloom(result.Receipts)
	result.StateRoot = store.Root()
	types.DeriveReceiptFields(result.Receipts, block.Hash(), block.NumberU64(), block.Transactions())
	return result, nil
}

// ValidateBlock performs the holistic re-derivation check: reconstruct the
// expected child of parent, replay the block's ommers, transactions and
// rewards against parentState, and compare every derived commitment to the
// declared header. The returned slice holds one error per mismatch or
// inconsistency; a valid block yields none. parentState is not mutated.
func (v *BlockValidator) ValidateBlock(block *types.Block, parent *types.Header, parentState *state.AccountStore, reader BlockReader) []error {
	header := block.Header()
	var errs []error

	errs = append(errs, v.ValidateHeader(header, parent)...)
	if err := v.ValidateOmmers(block, reader); err != nil {
		errs = append(errs, err)
	}

	store := parentState.Copy()
	result, err := v.Process(block, store)
	if err != nil {
		return append(errs, err)
	}

	if result.StateRoot != header.Root {
		errs = append(errs, fmt.Errorf("%w: want %s, got %s", ErrStateRootMismatch, result.StateRoot.Hex(), header.Root.Hex()))
	}

	ommersHash, err := CalcOmmersHash(block.Uncles())
	if err != nil {
		return append(errs, err)
	}
	if ommersHash != header.UncleHash {
		errs = append(errs, fmt.Errorf("%w: want %s, got %s", ErrOmmersHashMismatch, ommersHash.Hex(), header.UncleHash.Hex()))
	}

	txRoot, err := CalcTxRoot(block.Transactions())
	if err != nil {
		return append(errs, err)
	}
	if txRoot != header.TxHash {
		errs = append(errs, fmt.Errorf("%w: want %s, got %s", ErrTransactionsRootMismatch, txRoot.Hex(), header.TxHash.Hex()))
	}

	receiptRoot, err := CalcReceiptRoot(result.Receipts)
	if err != nil {
		return append(errs, err)
	}
	if receiptRoot != header.ReceiptHash {
		errs = append(errs, fmt.Errorf("%w: want %s, got %s", ErrReceiptsRootMismatch, receiptRoot.Hex(), header.ReceiptHash.Hex()))
	}

	if result.GasUsed != header.GasUsed {
		errs = append(errs, fmt.Errorf("%w: want %d, got %d", ErrGasUsedMismatch, result.GasUsed, header.GasUsed))
	}

	if result.Bloom != header.Bloom {
		errs = append(errs, fmt.Errorf("%w", ErrLogsBloomMismatch))
	}

	return errs
}
