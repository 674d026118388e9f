package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/mana-ethereum/mana/core/rawdb"
	"github.com/mana-ethereum/mana/core/state"
	"github.com/mana-ethereum/mana/core/types"
	"github.com/mana-ethereum/mana/core/vm"
	"github.com/mana-ethereum/mana/crypto"
)

// fakeEVM is a hand-written interpreter stand-in: the executor treats the
// EVM as an oracle, so tests script its behavior per invocation.
type fakeEVM struct {
	run func(gas uint64, env *vm.Environment) vm.Result
}

func (f *fakeEVM) Run(gas uint64, env *vm.Environment) vm.Result {
	if f.run == nil {
		return vm.Result{GasRemaining: gas}
	}
	return f.run(gas, env)
}

var testKey = func() *big.Int {
	k, _ := new(big.Int).SetString("4646464646464646464646464646464646464646464646464646464646464646", 16)
	return k
}()

func testSender() types.Address {
	return types.Address(crypto.PubkeyToAddress(crypto.PrivToPubkey(testKey)))
}

func signTestTx(t *testing.T, config *ChainConfig, tx *types.Transaction) *types.Transaction {
	t.Helper()
	signer := types.MakeSigner(chainIDOrZero(config), config.EIP155Block != nil, true)
	signed, err := types.SignTx(tx, signer, testKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func testHeader(number int64, gasLimit uint64) *types.Header {
	return &types.Header{
		Coinbase:   types.BytesToAddress([]byte{0xc0}),
		Number:     big.NewInt(number),
		GasLimit:   gasLimit,
		Time:       10,
		Difficulty: big.NewInt(131_072),
		UncleHash:  types.EmptyUncleHash,
	}
}

func newExecutorStore(t *testing.T, balances map[types.Address]int64) *state.AccountStore {
	t.Helper()
	store := state.NewAccountStore(rawdb.NewMemoryDB())
	for a, wei := range balances {
		if err := store.AddWei(a, big.NewInt(wei)); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func mustAccount(t *testing.T, store *state.AccountStore, a types.Address) *types.Account {
	t.Helper()
	acct, err := store.GetAccount(a)
	if err != nil {
		t.Fatal(err)
	}
	if acct == nil {
		t.Fatalf("account %s missing", a.Hex())
	}
	return acct
}

func TestSimpleTransfer(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	recipient := types.BytesToAddress([]byte{0xbb})
	store := newExecutorStore(t, map[types.Address]int64{sender: 10, recipient: 5})

	to := recipient
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(3),
	})

	ex := NewExecutor(config, &fakeEVM{})
	header := testHeader(1, 1_000_000)
	gp := new(GasPool).AddGas(header.GasLimit)

	receipt, gasUsed, err := ex.ApplyTransaction(store, header, gp, tx, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("status: %d", receipt.Status)
	}
	if gasUsed != 21000 || receipt.CumulativeGasUsed != 21000 {
		t.Fatalf("gas used: %d, cumulative %d", gasUsed, receipt.CumulativeGasUsed)
	}
	if got := mustAccount(t, store, sender); got.Balance.Cmp(big.NewInt(7)) != 0 || got.Nonce != 1 {
		t.Fatalf("sender after: %+v", got)
	}
	if got := mustAccount(t, store, recipient); got.Balance.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("recipient after: %+v", got)
	}
	if gp.Gas() != header.GasLimit-21000 {
		t.Fatalf("gas pool: %d", gp.Gas())
	}
}

func TestInsufficientBalanceRejected(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	store := newExecutorStore(t, map[types.Address]int64{sender: 10})
	before := store.Root()

	to := types.BytesToAddress([]byte{0x02})
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(12),
	})

	ex := NewExecutor(config, &fakeEVM{})
	gp := new(GasPool).AddGas(1_000_000)
	_, _, err := ex.ApplyTransaction(store, testHeader(1, 1_000_000), gp, tx, 0)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v", err)
	}
	if store.Root() != before {
		t.Fatal("rejected transaction mutated state")
	}
	if gp.Gas() != 1_000_000 {
		t.Fatal("rejected transaction consumed block gas")
	}
}

func TestPreflightOrder(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	to := types.BytesToAddress([]byte{0x02})
	ex := NewExecutor(config, &fakeEVM{})
	header := testHeader(1, 1_000_000)

	// Unsigned transaction: sender recovery fails first.
	store := newExecutorStore(t, map[types.Address]int64{sender: 1_000_000})
	unsigned := &types.Transaction{Nonce: 0, GasPrice: new(big.Int), Gas: 21000, To: &to, Value: new(big.Int)}
	if _, _, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(1_000_000), unsigned, 0); !errors.Is(err, ErrInvalidSender) {
		t.Fatalf("unsigned: %v", err)
	}

	// Absent sender account.
	empty := state.NewAccountStore(rawdb.NewMemoryDB())
	signed := signTestTx(t, config, unsigned)
	if _, _, err := ex.ApplyTransaction(empty, header, new(GasPool).AddGas(1_000_000), signed, 0); !errors.Is(err, ErrMissingAccount) {
		t.Fatalf("missing account: %v", err)
	}

	// Wrong nonce.
	wrongNonce := signTestTx(t, config, &types.Transaction{Nonce: 7, GasPrice: new(big.Int), Gas: 21000, To: &to, Value: new(big.Int)})
	if _, _, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(1_000_000), wrongNonce, 0); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("nonce: %v", err)
	}

	// Gas limit below intrinsic cost.
	underGas := signTestTx(t, config, &types.Transaction{Nonce: 0, GasPrice: new(big.Int), Gas: 20999, To: &to, Value: new(big.Int)})
	if _, _, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(1_000_000), underGas, 0); !errors.Is(err, ErrInsufficientIntrinsicGas) {
		t.Fatalf("intrinsic: %v", err)
	}
}

func TestOverGasLimitRejectedBeforeExecution(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	store := newExecutorStore(t, map[types.Address]int64{sender: 1_000_000})

	to := types.BytesToAddress([]byte{0x02})
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      30_000,
		To:       &to,
		Value:    new(big.Int),
	})

	evmInvoked := false
	ex := NewExecutor(config, &fakeEVM{run: func(gas uint64, env *vm.Environment) vm.Result {
		evmInvoked = true
		return vm.Result{GasRemaining: gas}
	}})

	// 25_000 of the block's gas is already used.
	gp := new(GasPool).AddGas(50_000)
	gp.SubGas(25_000)
	_, _, err := ex.ApplyTransaction(store, testHeader(1, 50_000), gp, tx, 0)
	if !errors.Is(err, ErrOverGasLimit) {
		t.Fatalf("got %v", err)
	}
	if evmInvoked {
		t.Fatal("EVM ran for an over-limit transaction")
	}
}

func TestContractCreation(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	store := newExecutorStore(t, map[types.Address]int64{sender: 400_000})
	for i := 0; i < 5; i++ {
		if err := store.IncrementNonce(sender); err != nil {
			t.Fatal(err)
		}
	}

	// PUSH1 3 PUSH1 5 ADD PUSH1 0 MSTORE PUSH1 0 PUSH1 32 RETURN
	initCode := []byte{0x60, 0x03, 0x60, 0x05, 0x01, 0x60, 0x00, 0x52, 0x60, 0x00, 0x60, 0x20, 0xf3}
	sum := make([]byte, 32)
	sum[31] = 8

	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    5,
		GasPrice: big.NewInt(3),
		Gas:      100_000,
		To:       nil,
		Value:    big.NewInt(5),
		Data:     initCode,
	})

	ex := NewExecutor(config, &fakeEVM{run: func(gas uint64, env *vm.Environment) vm.Result {
		if !bytes.Equal(env.Code, initCode) {
			t.Fatal("interpreter did not receive the init code")
		}
		if env.Input != nil {
			t.Fatal("creation carries call data")
		}
		return vm.Result{GasRemaining: gas - 24, Output: sum}
	}})

	header := testHeader(1, 1_000_000)
	gp := new(GasPool).AddGas(header.GasLimit)
	receipt, gasUsed, err := ex.ApplyTransaction(store, header, gp, tx, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// g0 = 21000 + 32000 + 11*68 + 2*4 = 53756; the init code ran for 24
	// and the 32-byte deposit costs 6400.
	wantUsed := uint64(53756 + 24 + 6400)
	if gasUsed != wantUsed || receipt.CumulativeGasUsed != wantUsed {
		t.Fatalf("gas used: %d, want %d", gasUsed, wantUsed)
	}

	contractAddr := types.Address(crypto.CreateAddress(sender, 5))
	if receipt.ContractAddress != contractAddr {
		t.Fatalf("receipt contract address: %s", receipt.ContractAddress.Hex())
	}
	contract := mustAccount(t, store, contractAddr)
	if contract.Balance.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("contract balance: %v", contract.Balance)
	}
	code, err := store.GetCode(contractAddr)
	if err != nil || !bytes.Equal(code, sum) {
		t.Fatalf("deployed code: %x, %v", code, err)
	}

	senderAcct := mustAccount(t, store, sender)
	if senderAcct.Nonce != 6 {
		t.Fatalf("sender nonce: %d", senderAcct.Nonce)
	}
	wantBalance := big.NewInt(400_000 - 5 - 3*int64(wantUsed))
	if senderAcct.Balance.Cmp(wantBalance) != 0 {
		t.Fatalf("sender balance: %v, want %v", senderAcct.Balance, wantBalance)
	}
	beneficiary := mustAccount(t, store, header.Coinbase)
	if beneficiary.Balance.Cmp(big.NewInt(3*int64(wantUsed))) != 0 {
		t.Fatalf("beneficiary fee: %v", beneficiary.Balance)
	}
}

func TestCreationRejectsOversizedCode(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	store := newExecutorStore(t, map[types.Address]int64{sender: 10_000_000})

	huge := make([]byte, 24577)
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      8_000_000,
		To:       nil,
		Value:    new(big.Int),
		Data:     []byte{0x00},
	})

	ex := NewExecutor(config, &fakeEVM{run: func(gas uint64, env *vm.Environment) vm.Result {
		return vm.Result{GasRemaining: gas, Output: huge}
	}})

	header := testHeader(1, 10_000_000)
	receipt, gasUsed, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(header.GasLimit), tx, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if receipt.Status != types.ReceiptStatusFailed {
		t.Fatal("oversized deploy succeeded")
	}
	if gasUsed != tx.Gas {
		t.Fatalf("oversized deploy used %d, want full %d", gasUsed, tx.Gas)
	}
	contractAddr := types.Address(crypto.CreateAddress(sender, 0))
	if code, _ := store.GetCode(contractAddr); len(code) != 0 {
		t.Fatal("oversized code deployed anyway")
	}
}

func TestEVMFailureConsumesAllGas(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	contract := types.BytesToAddress([]byte{0xcc})
	store := newExecutorStore(t, map[types.Address]int64{sender: 10_000_000, contract: 0})
	if err := store.PutCode(contract, []byte{0xfe}); err != nil {
		t.Fatal(err)
	}

	to := contract
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: big.NewInt(1),
		Gas:      50_000,
		To:       &to,
		Value:    big.NewInt(100),
	})

	ex := NewExecutor(config, &fakeEVM{run: func(gas uint64, env *vm.Environment) vm.Result {
		env.Substate.AddLog(&types.Log{Address: env.Address})
		env.Substate.AddRefund(10_000)
		return vm.Result{Failed: true}
	}})

	header := testHeader(1, 1_000_000)
	receipt, gasUsed, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(header.GasLimit), tx, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if receipt.Status != types.ReceiptStatusFailed {
		t.Fatal("failed execution reported success")
	}
	if gasUsed != 50_000 {
		t.Fatalf("failure gas: %d, want full gas limit", gasUsed)
	}
	if len(receipt.Logs) != 0 {
		t.Fatal("failed execution kept logs")
	}

	senderAcct := mustAccount(t, store, sender)
	// The value transfer was reverted; the gas debit and nonce survive.
	if senderAcct.Balance.Cmp(big.NewInt(10_000_000-50_000)) != 0 {
		t.Fatalf("sender balance: %v", senderAcct.Balance)
	}
	if senderAcct.Nonce != 1 {
		t.Fatalf("sender nonce: %d", senderAcct.Nonce)
	}
	if got := mustAccount(t, store, contract); got.Balance.Sign() != 0 {
		t.Fatal("reverted value transfer persisted")
	}
	if got := mustAccount(t, store, header.Coinbase); got.Balance.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("beneficiary fee: %v", got.Balance)
	}
}

func TestSelfDestructOfSenderWithRefund(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	contract := types.BytesToAddress([]byte{0xcc})
	store := newExecutorStore(t, map[types.Address]int64{sender: 1_000_000, contract: 0})
	if err := store.PutCode(contract, []byte{0xff}); err != nil {
		t.Fatal(err)
	}

	to := contract
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      100_000,
		To:       &to,
		Value:    new(big.Int),
	})

	ex := NewExecutor(config, &fakeEVM{run: func(gas uint64, env *vm.Environment) vm.Result {
		env.Substate.MarkSelfDestruct(env.Origin)
		env.Substate.AddRefund(24_000)
		return vm.Result{GasRemaining: gas - 5000}
	}})

	header := testHeader(1, 1_000_000)
	receipt, gasUsed, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(header.GasLimit), tx, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatal("self-destruct of sender rejected")
	}

	// Consumed before refund: g0 + 5000 = 26000; refund caps at half of
	// that, 13000, below the counter's 24000.
	if wantUsed := uint64(21000+5000) - 13000; gasUsed != wantUsed {
		t.Fatalf("gas used: %d, want %d", gasUsed, wantUsed)
	}
	if acct, _ := store.GetAccount(sender); acct != nil {
		t.Fatal("self-destructed sender still exists")
	}
}

func TestSpuriousDragonCleansTouchedEmptyAccounts(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	emptyTarget := types.BytesToAddress([]byte{0xee})
	store := newExecutorStore(t, map[types.Address]int64{sender: 1_000_000})

	to := emptyTarget
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      21000,
		To:       &to,
		Value:    new(big.Int), // zero-value touch
	})

	ex := NewExecutor(config, &fakeEVM{})
	header := testHeader(1, 1_000_000)
	if _, _, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(header.GasLimit), tx, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if acct, _ := store.GetAccount(emptyTarget); acct != nil {
		t.Fatal("touched empty account survived Spurious Dragon cleanup")
	}

	// Pre-Spurious-Dragon chains keep the account.
	frontier := FrontierChainConfig
	store2 := newExecutorStore(t, map[types.Address]int64{sender: 1_000_000})
	tx2 := signTestTx(t, frontier, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      21000,
		To:       &to,
		Value:    new(big.Int),
	})
	ex2 := NewExecutor(frontier, &fakeEVM{})
	if _, _, err := ex2.ApplyTransaction(store2, header, new(GasPool).AddGas(1_000_000), tx2, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if acct, _ := store2.GetAccount(emptyTarget); acct == nil {
		t.Fatal("zero-value transfer did not create the account pre-Spurious-Dragon")
	}
}

func TestPreByzantiumReceiptCarriesPostState(t *testing.T) {
	config := &ChainConfig{
		ChainID:                big.NewInt(1),
		HomesteadBlock:         big.NewInt(0),
		EIP150Block:            big.NewInt(0),
		MinimumDifficulty:      big.NewInt(131_072),
		DifficultyBoundDivisor: big.NewInt(2048),
		DurationLimit:          big.NewInt(13),
		GasLimitBoundDivisor:   1024,
		MinGasLimit:            5000,
		MaxCodeSize:            24576,
	}
	sender := testSender()
	recipient := types.BytesToAddress([]byte{0x02})
	store := newExecutorStore(t, map[types.Address]int64{sender: 1_000_000})

	to := recipient
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(1),
	})

	ex := NewExecutor(config, &fakeEVM{})
	header := testHeader(1, 1_000_000)
	receipt, _, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(header.GasLimit), tx, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	root := store.Root()
	if !bytes.Equal(receipt.PostState, root[:]) {
		t.Fatalf("post state: %x, want %x", receipt.PostState, root[:])
	}
}

func TestPrecompileDispatch(t *testing.T) {
	config := TestChainConfig
	sender := testSender()
	store := newExecutorStore(t, map[types.Address]int64{sender: 1_000_000})

	to := types.BytesToAddress([]byte{4}) // identity
	payload := []byte{0xaa, 0xbb}
	tx := signTestTx(t, config, &types.Transaction{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      40_000,
		To:       &to,
		Value:    new(big.Int),
		Data:     payload,
	})

	ex := NewExecutor(config, &fakeEVM{run: func(gas uint64, env *vm.Environment) vm.Result {
		t.Fatal("interpreter invoked for a precompiled contract")
		return vm.Result{}
	}})

	header := testHeader(1, 1_000_000)
	receipt, gasUsed, err := ex.ApplyTransaction(store, header, new(GasPool).AddGas(header.GasLimit), tx, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatal("precompile call failed")
	}
	// g0 = 21000 + 2*68; identity charges 15 + 3*1 = 18.
	if wantUsed := uint64(21000 + 2*68 + 18); gasUsed != wantUsed {
		t.Fatalf("gas used: %d, want %d", gasUsed, wantUsed)
	}
}

func TestIntrinsicGas(t *testing.T) {
	if got := IntrinsicGas(nil, false, true); got != 21000 {
		t.Fatalf("empty call: %d", got)
	}
	if got := IntrinsicGas(nil, true, true); got != 53000 {
		t.Fatalf("homestead creation: %d", got)
	}
	if got := IntrinsicGas(nil, true, false); got != 21000 {
		t.Fatalf("frontier creation: %d", got)
	}
	if got := IntrinsicGas([]byte{0, 1, 0, 2}, false, true); got != 21000+2*4+2*68 {
		t.Fatalf("data bytes: %d", got)
	}
}
