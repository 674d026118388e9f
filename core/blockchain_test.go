package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/mana-ethereum/mana/core/rawdb"
	"github.com/mana-ethereum/mana/core/types"
)

func newTestChain(t *testing.T) (*Blockchain, *types.Block) {
	t.Helper()
	genesis := &Genesis{
		Config:     TestChainConfig,
		GasLimit:   1_000_000,
		Difficulty: big.NewInt(131_072),
	}
	bc, block, err := genesis.Commit(rawdb.NewMemoryDB(), &fakeEVM{})
	if err != nil {
		t.Fatal(err)
	}
	return bc, block
}

// unvalidatedBlock builds a block on parent with an arbitrary number and
// difficulty, for exercising the fork-choice rule in isolation.
func unvalidatedBlock(parent *types.Block, number, difficulty int64) *types.Block {
	header := &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Number:     big.NewInt(number),
		Difficulty: big.NewInt(difficulty),
		GasLimit:   parent.GasLimit(),
		Time:       parent.Time() + 13,
	}
	return types.NewBlock(header, nil)
}

func TestForkChoiceHeaviestWins(t *testing.T) {
	bc, genesis := newTestChain(t)

	b1 := unvalidatedBlock(genesis, 5, 100)
	b2 := unvalidatedBlock(b1, 6, 110)
	b3 := unvalidatedBlock(b1, 6, 109)

	for _, b := range []*types.Block{b1, b2, b3} {
		if err := bc.VerifyAndAdd(b, false); err != nil {
			t.Fatalf("add %d: %v", b.NumberU64(), err)
		}
	}

	if best := bc.BestBlock(); best.Hash() != b2.Hash() {
		t.Fatalf("best block: number %d difficulty %v, want b2", best.NumberU64(), best.Difficulty())
	}
}

func TestForkChoiceMonotonic(t *testing.T) {
	bc, genesis := newTestChain(t)

	b1 := unvalidatedBlock(genesis, 1, 50)
	if err := bc.VerifyAndAdd(b1, false); err != nil {
		t.Fatal(err)
	}
	if bc.BestBlock().Hash() != b1.Hash() {
		t.Fatal("higher block did not become best")
	}

	// A lower-difficulty sibling does not displace the best block.
	b1b := unvalidatedBlock(genesis, 1, 10)
	if err := bc.VerifyAndAdd(b1b, false); err != nil {
		t.Fatal(err)
	}
	if bc.BestBlock().Hash() != b1.Hash() {
		t.Fatal("lighter sibling displaced the best block")
	}
}

func TestParentResolution(t *testing.T) {
	bc, genesis := newTestChain(t)

	orphan := &types.Header{
		ParentHash: types.HexToHash("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
		Number:     big.NewInt(1),
		Difficulty: big.NewInt(1),
		GasLimit:   genesis.GasLimit(),
		Time:       99,
		UncleHash:  types.EmptyUncleHash,
	}
	if err := bc.VerifyAndAdd(types.NewBlock(orphan, nil), false); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("orphan: %v", err)
	}

	noParent := &types.Header{
		ParentHash: types.Hash{},
		Number:     big.NewInt(1),
		Difficulty: big.NewInt(1),
		GasLimit:   genesis.GasLimit(),
		Time:       99,
		UncleHash:  types.EmptyUncleHash,
	}
	if err := bc.VerifyAndAdd(types.NewBlock(noParent, nil), false); !errors.Is(err, ErrNonGenesisBlockRequiresParent) {
		t.Fatalf("zero parent: %v", err)
	}

	// A rejected block leaves no trace.
	if bc.GetBlockByNumber(1) != nil {
		t.Fatal("rejected block indexed")
	}
}

func TestRejectionLeavesStateUnchanged(t *testing.T) {
	bc, genesis := newTestChain(t)

	// An invalid block (bad declared roots) under full validation.
	header := &types.Header{
		ParentHash: genesis.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Number:     big.NewInt(1),
		Difficulty: CalcDifficulty(bc.Config(), genesis.Time()+13, genesis.Header()),
		GasLimit:   genesis.GasLimit(),
		Time:       genesis.Time() + 13,
		Root:       types.HexToHash("010203"),
	}
	bad := types.NewBlock(header, nil)
	if err := bc.VerifyAndAdd(bad, true); err == nil {
		t.Fatal("invalid block accepted")
	}
	if bc.HasBlock(bad.Hash()) {
		t.Fatal("invalid block persisted")
	}
	if bc.BestBlock().Hash() != genesis.Hash() {
		t.Fatal("best pointer moved for an invalid block")
	}
}

func TestPersistedBlockRoundTrip(t *testing.T) {
	bc, genesis := newTestChain(t)
	b1 := unvalidatedBlock(genesis, 1, 131_072)
	if err := bc.VerifyAndAdd(b1, false); err != nil {
		t.Fatal(err)
	}

	if got := bc.GetBlock(b1.Hash()); got == nil || got.Hash() != b1.Hash() {
		t.Fatal("block not retrievable by hash")
	}
	if got := bc.GetBlockByNumber(1); got == nil || got.Hash() != b1.Hash() {
		t.Fatal("block not retrievable by number")
	}
	if got := bc.GetBlockByNumber(99); got != nil {
		t.Fatal("phantom block at unindexed height")
	}
}

func TestStateAtTracksPerBlockStates(t *testing.T) {
	sender := testSender()
	genesis := &Genesis{
		Config:     TestChainConfig,
		GasLimit:   1_000_000,
		Difficulty: big.NewInt(131_072),
		Alloc:      GenesisAlloc{sender: {Balance: big.NewInt(1_000_000)}},
	}
	bc, gblock, err := genesis.Commit(rawdb.NewMemoryDB(), &fakeEVM{})
	if err != nil {
		t.Fatal(err)
	}

	to := types.BytesToAddress([]byte{0xbb})
	tx := signTestTx(t, TestChainConfig, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(250),
	})

	validator := NewBlockValidator(TestChainConfig, NewExecutor(TestChainConfig, &fakeEVM{}))
	header, err := DeriveChildHeader(TestChainConfig, gblock.Header(), types.BytesToAddress([]byte{0xc0}), gblock.Time()+13, gblock.GasLimit(), nil)
	if err != nil {
		t.Fatal(err)
	}
	draft := types.NewBlock(header, &types.Body{Transactions: []*types.Transaction{tx}})
	replay := bc.StateAt(gblock.Hash())
	result, err := validator.Process(draft, replay)
	if err != nil {
		t.Fatal(err)
	}
	header.Root = result.StateRoot
	header.GasUsed = result.GasUsed
	header.Bloom = result.Bloom
	header.TxHash, _ = CalcTxRoot(draft.Transactions())
	header.ReceiptHash, _ = CalcReceiptRoot(result.Receipts)
	block := types.NewBlock(header, draft.Body())

	if err := bc.VerifyAndAdd(block, true); err != nil {
		t.Fatalf("valid block rejected: %v", err)
	}

	// The parent state is untouched; the child state holds the transfer.
	gstate := bc.StateAt(gblock.Hash())
	if acct, _ := gstate.GetAccount(to); acct != nil {
		t.Fatal("genesis state mutated by child block")
	}
	cstate := bc.StateAt(block.Hash())
	acct, _ := cstate.GetAccount(to)
	if acct == nil || acct.Balance.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("child state missing the transfer: %+v", acct)
	}
}
