package core

import (
	"fmt"
	"math/big"

	"github.com/mana-ethereum/mana/core/state"
	"github.com/mana-ethereum/mana/core/types"
	"github.com/mana-ethereum/mana/core/vm"
	"github.com/mana-ethereum/mana/crypto"
)

// Intrinsic gas costs.
const (
	// TxGas is the base cost of every transaction.
	TxGas uint64 = 21000

	// TxGasContractCreation is the extra cost of a creation transaction,
	// charged from Homestead on.
	TxGasContractCreation uint64 = 32000

	// TxDataZeroGas is the per-byte cost of zero input bytes.
	TxDataZeroGas uint64 = 4

	// TxDataNonZeroGas is the per-byte cost of nonzero input bytes.
	TxDataNonZeroGas uint64 = 68

	// CreateDataGas is the per-byte deposit cost of deployed contract code.
	CreateDataGas uint64 = 200
)

// Executor applies transactions to the world state: pre-flight validation,
// gas accounting, dispatch into the EVM or a precompiled contract, refunds,
// beneficiary payout, self-destruct reaping and touched-account cleanup.
// The EVM is an external oracle supplied at construction; an optional
// breakpoint hook is threaded through to it for the debugger.
type Executor struct {
	config      *ChainConfig
	interpreter vm.Interpreter
	breakpoint  vm.BreakpointHook
}

// NewExecutor creates an executor over the given chain config and EVM.
func NewExecutor(config *ChainConfig, interpreter vm.Interpreter) *Executor {
	return &Executor{config: config, interpreter: interpreter}
}

// SetBreakpointHook installs the debugger's break-on-address hook. A nil
// hook disables it.
func (ex *Executor) SetBreakpointHook(hook vm.BreakpointHook) {
	ex.breakpoint = hook
}

// IntrinsicGas computes g0: the gas consumed before any bytecode runs.
func IntrinsicGas(data []byte, isCreate, homestead bool) uint64 {
	gas := TxGas
	if isCreate && homestead {
		gas += TxGasContractCreation
	}
	for _, b := range data {
		if b == 0 {
			gas += TxDataZeroGas
		} else {
			gas += TxDataNonZeroGas
		}
	}
	return gas
}

// preflight runs the validation stages in order and reports the first
// failure. It does not mutate any state.
func (ex *Executor) preflight(staging *state.StagingDB, header *types.Header, gp *GasPool, tx *types.Transaction) (types.Address, uint64, error) {
	num := header.Number

	signer := types.MakeSigner(chainIDOrZero(ex.config), ex.config.IsEIP155(num), ex.config.IsHomestead(num))
	sender, err := types.Sender(signer, tx)
	if err != nil {
		return types.Address{}, 0, fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}

	acct, err := staging.Account(sender)
	if err != nil {
		return types.Address{}, 0, err
	}
	if acct == nil {
		return types.Address{}, 0, fmt.Errorf("%w: %s", ErrMissingAccount, sender.Hex())
	}

	if acct.Nonce != tx.Nonce {
		return types.Address{}, 0, fmt.Errorf("%w: tx %d, account %d", ErrNonceMismatch, tx.Nonce, acct.Nonce)
	}

	isCreate := tx.To == nil
	input := tx.Data
	g0 := IntrinsicGas(input, isCreate, ex.config.IsHomestead(num))
	if tx.Gas < g0 {
		return types.Address{}, 0, fmt.Errorf("%w: have %d, want %d", ErrInsufficientIntrinsicGas, tx.Gas, g0)
	}

	v0 := new(big.Int).Mul(bigOrZero(tx.GasPrice), new(big.Int).SetUint64(tx.Gas))
	v0.Add(v0, bigOrZero(tx.Value))
	if acct.Balance.Cmp(v0) < 0 {
		return types.Address{}, 0, fmt.Errorf("%w: have %v, want %v", ErrInsufficientBalance, acct.Balance, v0)
	}

	if tx.Gas > gp.Gas() {
		return types.Address{}, 0, fmt.Errorf("%w: tx %d, block remainder %d", ErrOverGasLimit, tx.Gas, gp.Gas())
	}

	return sender, g0, nil
}

// ApplyTransaction executes one transaction against the store and, on
// success, commits the resulting staging repository and emits a receipt
// whose cumulative gas continues from cumulative. A returned error is a
// pre-flight failure: the transaction is cancelled and the store unchanged.
func (ex *Executor) ApplyTransaction(store *state.AccountStore, header *types.Header, gp *GasPool, tx *types.Transaction, cumulative uint64) (*types.Receipt, uint64, error) {
	staging := state.NewStagingDB(store)

	sender, g0, err := ex.preflight(staging, header, gp, tx)
	if err != nil {
		return nil, 0, err
	}

	num := header.Number
	rules := ex.config.Rules(num)
	gasPrice := bigOrZero(tx.GasPrice)
	value := bigOrZero(tx.Value)

	// Debit the full gas allowance and bump the nonce. These mutations
	// survive EVM failure.
	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(tx.Gas))
	if err := staging.AddWei(sender, new(big.Int).Neg(gasCost)); err != nil {
		return nil, 0, err
	}
	if err := staging.IncrementNonce(sender); err != nil {
		return nil, 0, err
	}

	substate := vm.NewSubstate()
	substate.Touch(sender)

	env := &vm.Environment{
		Origin:     sender,
		Caller:     sender,
		GasPrice:   gasPrice,
		Value:      value,
		Header:     header,
		State:      staging,
		Substate:   substate,
		Rules:      rules,
		Breakpoint: ex.breakpoint,
	}

	gas := tx.Gas - g0
	snapshot := staging.Snapshot()

	var (
		remaining    uint64
		failed       bool
		contractAddr *types.Address
	)
	if tx.To == nil {
		remaining, _, contractAddr, failed = ex.create(staging, env, sender, tx, gas)
	} else {
		remaining, _, failed = ex.call(staging, env, sender, *tx.To, tx.Data, value, gas)
	}

	if failed {
		// All gas is consumed; the sub-state is discarded; the gas debit
		// and nonce increment stand.
		staging.RevertToSnapshot(snapshot)
		remaining = 0
		substate = vm.NewSubstate()
	}

	// Refund and payouts, Yellow Paper §6.2: the refund is capped at half
	// the gas actually consumed.
	refund := (tx.Gas - remaining) / 2
	if substate.Refund < refund {
		refund = substate.Refund
	}
	gasUsed := tx.Gas - (remaining + refund)

	returned := new(big.Int).SetUint64(remaining + refund)
	if err := staging.AddWei(sender, returned.Mul(returned, gasPrice)); err != nil {
		return nil, 0, err
	}
	fee := new(big.Int).SetUint64(gasUsed)
	if err := staging.AddWei(header.Coinbase, fee.Mul(fee, gasPrice)); err != nil {
		return nil, 0, err
	}
	substate.Touch(header.Coinbase)

	// Reap self-destructed accounts; a self-destructed beneficiary is
	// zeroed out with the rest.
	for addr := range substate.SelfDestructs {
		if err := staging.DeleteAccount(addr); err != nil {
			return nil, 0, err
		}
	}

	// EIP-161: remove touched accounts that ended up empty.
	if rules.IsSpuriousDragon {
		for addr := range substate.Touched {
			if _, destructed := substate.SelfDestructs[addr]; destructed {
				continue
			}
			if staging.Empty(addr) && staging.Exists(addr) {
				if err := staging.DeleteAccount(addr); err != nil {
					return nil, 0, err
				}
			}
		}
	}

	if err := staging.Commit(); err != nil {
		return nil, 0, err
	}
	if err := gp.SubGas(gasUsed); err != nil {
		return nil, 0, err
	}

	receipt := &types.Receipt{
		CumulativeGasUsed: cumulative + gasUsed,
		Logs:              substate.Logs,
		Bloom:             types.LogsBloom(substate.Logs),
		GasUsed:           gasUsed,
		TxHash:            tx.Hash(),
	}
	if rules.IsByzantium {
		if failed {
			receipt.Status = types.ReceiptStatusFailed
		} else {
			receipt.Status = types.ReceiptStatusSuccessful
		}
	} else {
		root := store.Root()
		receipt.PostState = root[:]
	}
	if contractAddr != nil {
		receipt.ContractAddress = *contractAddr
	}
	return receipt, gasUsed, nil
}

// create runs a contract-creation transaction: derive the target address,
// move the endowment, execute the init code and deposit the returned code.
func (ex *Executor) create(staging *state.StagingDB, env *vm.Environment, sender types.Address, tx *types.Transaction, gas uint64) (remaining uint64, output []byte, contractAddr *types.Address, failed bool) {
	// The sender nonce was already incremented; the address derives from
	// the pre-increment value, which is the transaction nonce.
	target := types.Address(crypto.CreateAddress(sender, tx.Nonce))
	contractAddr = &target

	if err := staging.Transfer(sender, target, bigOrZero(tx.Value)); err != nil {
		return 0, nil, contractAddr, true
	}
	env.Substate.Touch(target)

	env.Address = target
	env.Code = tx.Data
	env.Input = nil

	res := ex.interpreter.Run(gas, env)
	if res.Failed {
		return 0, nil, contractAddr, true
	}

	// EIP-170 caps deployed code size from Spurious Dragon on.
	if env.Rules.IsSpuriousDragon && uint64(len(res.Output)) > env.Rules.MaxCodeSize {
		return 0, nil, contractAddr, true
	}

	// Charge the code deposit. Before Homestead a deposit the remaining
	// gas cannot cover leaves the account codeless; from Homestead on it
	// fails the creation.
	deposit := uint64(len(res.Output)) * CreateDataGas
	if res.GasRemaining < deposit {
		if env.Rules.IsHomestead {
			return 0, nil, contractAddr, true
		}
		return res.GasRemaining, res.Output, contractAddr, false
	}
	if err := staging.PutCode(target, res.Output); err != nil {
		return 0, nil, contractAddr, true
	}
	return res.GasRemaining - deposit, res.Output, contractAddr, false
}

// call runs a message-call transaction: move the value, then dispatch by
// recipient to a precompiled contract or the recipient's code.
func (ex *Executor) call(staging *state.StagingDB, env *vm.Environment, sender, to types.Address, input []byte, value *big.Int, gas uint64) (remaining uint64, output []byte, failed bool) {
	if err := staging.Transfer(sender, to, value); err != nil {
		return 0, nil, true
	}
	env.Substate.Touch(to)

	if vm.IsPrecompiled(env.Rules, to) {
		out, left, err := vm.RunPrecompiled(env.Rules, to, input, gas)
		if err != nil {
			return 0, nil, true
		}
		return left, out, false
	}

	code, err := staging.GetCode(to)
	if err != nil {
		return 0, nil, true
	}
	if len(code) == 0 {
		return gas, nil, false
	}

	env.Address = to
	env.Code = code
	env.Input = input

	res := ex.interpreter.Run(gas, env)
	if res.Failed {
		return 0, nil, true
	}
	return res.GasRemaining, res.Output, false
}

func chainIDOrZero(config *ChainConfig) uint64 {
	if config.ChainID == nil {
		return 0
	}
	return config.ChainID.Uint64()
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
