// Package vm defines the execution environment handed to the EVM bytecode
// interpreter and the precompiled contracts dispatched by address. The
// interpreter itself is an external collaborator: the executor treats it as
// an oracle that, given gas and an environment, returns the remaining gas
// and output and accumulates its effects in the environment's sub-state and
// staging repository.
package vm

import (
	"errors"
	"math/big"

	"github.com/mana-ethereum/mana/core/state"
	"github.com/mana-ethereum/mana/core/types"
)

// ErrOutOfGas is returned when an operation cannot be paid for.
var ErrOutOfGas = errors.New("out of gas")

// Rules are the fork switches relevant to execution, resolved for one block
// so the interpreter never consults the chain config directly.
type Rules struct {
	IsHomestead      bool
	IsEIP150         bool
	IsEIP155         bool
	IsSpuriousDragon bool
	IsByzantium      bool
	IsConstantinople bool
	EIP1283Enabled   bool
	MaxCodeSize      uint64
}

// BreakpointHook is invoked before the interpreter executes any instruction
// at a break address. It is optional and carried explicitly by the
// environment; there is no process-global debugger state.
type BreakpointHook func(addr types.Address, pc uint64)

// Substate accumulates the side effects of one outer call: accounts slated
// for self-destruction, accounts touched (EIP-161 cleanup candidates),
// ordered logs, and the gas refund counter. It is discarded wholesale when
// execution fails.
type Substate struct {
	SelfDestructs map[types.Address]struct{}
	Touched       map[types.Address]struct{}
	Logs          []*types.Log
	Refund        uint64
}

// NewSubstate creates an empty sub-state.
func NewSubstate() *Substate {
	return &Substate{
		SelfDestructs: make(map[types.Address]struct{}),
		Touched:       make(map[types.Address]struct{}),
	}
}

// MarkSelfDestruct records an account for end-of-transaction reaping.
func (s *Substate) MarkSelfDestruct(addr types.Address) {
	s.SelfDestructs[addr] = struct{}{}
}

// Touch records an account as touched for EIP-161 empty-account cleanup.
func (s *Substate) Touch(addr types.Address) {
	s.Touched[addr] = struct{}{}
}

// AddLog appends a log to the ordered sequence.
func (s *Substate) AddLog(log *types.Log) {
	s.Logs = append(s.Logs, log)
}

// AddRefund credits the refund counter.
func (s *Substate) AddRefund(gas uint64) {
	s.Refund += gas
}

// Environment carries everything one EVM invocation may read or mutate. The
// interpreter must not touch any state outside the staging repository.
type Environment struct {
	Address  types.Address // account being executed
	Origin   types.Address // transaction originator
	Caller   types.Address // immediate caller
	GasPrice *big.Int
	Value    *big.Int
	Input    []byte // call data
	Code     []byte // machine code under execution
	Depth    int    // call stack depth

	Header   *types.Header
	State    *state.StagingDB
	Substate *Substate
	Rules    Rules

	Breakpoint BreakpointHook
}

// Result is what an interpreter invocation produces. On failure the caller
// treats the remaining gas as consumed and discards the sub-state.
type Result struct {
	GasRemaining uint64
	Output       []byte
	Failed       bool
}

// Interpreter is the EVM bytecode oracle: given a gas allowance and an
// environment it executes env.Code and reports the outcome, accumulating
// logs, refunds, touches and self-destructs in env.Substate and all state
// mutations in env.State.
type Interpreter interface {
	Run(gas uint64, env *Environment) Result
}
