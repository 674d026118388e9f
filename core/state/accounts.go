// Package state implements the account-based world state: a Merkle Patricia
// trie of accounts keyed by Keccak256(address), per-account storage tries,
// and a content-addressed code store. The AccountStore is the durable layer;
// StagingDB overlays it with the per-transaction write cache.
package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/mana-ethereum/mana/core/rawdb"
	"github.com/mana-ethereum/mana/core/types"
	"github.com/mana-ethereum/mana/crypto"
	"github.com/mana-ethereum/mana/rlp"
	"github.com/mana-ethereum/mana/trie"
)

var (
	// ErrNotFound is returned when a stored account value exists but cannot
	// be decoded. A missing account is not an error.
	ErrNotFound = errors.New("state: stored account undecodable")

	// ErrBalanceUnderflow is returned when a balance adjustment would take
	// an account below zero.
	ErrBalanceUnderflow = errors.New("state: balance underflow")

	// ErrNegativeTransfer is returned for transfers of negative value.
	ErrNegativeTransfer = errors.New("state: negative transfer value")

	// ErrMissingSender is returned when the transfer source does not exist.
	ErrMissingSender = errors.New("state: transfer sender does not exist")

	// ErrInsufficientBalance is returned when the transfer source cannot
	// cover the value.
	ErrInsufficientBalance = errors.New("state: insufficient balance")

	// ErrMissingCode is returned when an account's code hash names code the
	// content-addressed store does not hold. This is unrecoverable.
	ErrMissingCode = errors.New("state: code missing from store")
)

// rlpAccount is the consensus encoding of an account:
// [nonce, balance, storage_root, code_hash].
type rlpAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     []byte
	CodeHash []byte
}

// AccountStore is the durable world state: the account trie, one storage
// trie per contract account, and the content-addressed code store.
type AccountStore struct {
	trie    *trie.Trie
	storage map[types.Address]*trie.Trie
	db      rawdb.Database
}

// NewAccountStore creates an empty world state backed by db for code blobs.
func NewAccountStore(db rawdb.Database) *AccountStore {
	return &AccountStore{
		trie:    trie.New(),
		storage: make(map[types.Address]*trie.Trie),
		db:      db,
	}
}

// GetAccount reads an account, or nil if the address holds none.
func (s *AccountStore) GetAccount(addr types.Address) (*types.Account, error) {
	enc, err := s.trie.Get(crypto.Keccak256(addr[:]))
	if err != nil {
		return nil, nil
	}
	var dec rlpAccount
	if err := rlp.DecodeBytes(enc, &dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	acct := &types.Account{
		Nonce:    dec.Nonce,
		Balance:  dec.Balance,
		Root:     types.BytesToHash(dec.Root),
		CodeHash: dec.CodeHash,
	}
	if acct.Balance == nil {
		acct.Balance = new(big.Int)
	}
	return acct, nil
}

// PutAccount writes the encoded account under Keccak256(address).
func (s *AccountStore) PutAccount(addr types.Address, acct *types.Account) error {
	codeHash := acct.CodeHash
	if len(codeHash) == 0 {
		codeHash = types.EmptyCodeHash.Bytes()
	}
	root := acct.Root
	if root.IsZero() {
		root = types.EmptyRootHash
	}
	enc, err := rlp.EncodeToBytes(rlpAccount{
		Nonce:    acct.Nonce,
		Balance:  bigOrZero(acct.Balance),
		Root:     root[:],
		CodeHash: codeHash,
	})
	if err != nil {
		return err
	}
	return s.trie.Put(crypto.Keccak256(addr[:]), enc)
}

// DeleteAccount removes the account and forgets its storage trie.
func (s *AccountStore) DeleteAccount(addr types.Address) error {
	delete(s.storage, addr)
	return s.trie.Delete(crypto.Keccak256(addr[:]))
}

// AddWei adjusts an account's balance by delta, treating a missing account
// as empty. A negative result fails with ErrBalanceUnderflow and leaves the
// state unchanged.
func (s *AccountStore) AddWei(addr types.Address, delta *big.Int) error {
	acct, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = newEmptyAccount()
	}
	balance := new(big.Int).Add(acct.Balance, delta)
	if balance.Sign() < 0 {
		return fmt.Errorf("%w: %v%+v", ErrBalanceUnderflow, acct.Balance, delta)
	}
	acct.Balance = balance
	return s.PutAccount(addr, acct)
}

// Transfer moves value wei from one account to another. It is atomic: on
// any failure the state is unchanged. A transfer to a nonexistent account
// creates a fresh account holding the value.
func (s *AccountStore) Transfer(from, to types.Address, value *big.Int) error {
	if value.Sign() < 0 {
		return ErrNegativeTransfer
	}
	sender, err := s.GetAccount(from)
	if err != nil {
		return err
	}
	if sender == nil {
		return ErrMissingSender
	}
	if sender.Balance.Cmp(value) < 0 {
		return fmt.Errorf("%w: have %v, want %v", ErrInsufficientBalance, sender.Balance, value)
	}
	if from == to {
		return nil
	}
	recipient, err := s.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient == nil {
		recipient = newEmptyAccount()
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, value)
	recipient.Balance = new(big.Int).Add(recipient.Balance, value)
	if err := s.PutAccount(from, sender); err != nil {
		return err
	}
	return s.PutAccount(to, recipient)
}

// IncrementNonce bumps an account's nonce, treating a missing account as
// empty (its nonce becomes 1).
func (s *AccountStore) IncrementNonce(addr types.Address) error {
	acct, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = newEmptyAccount()
	}
	acct.Nonce++
	return s.PutAccount(addr, acct)
}

// GetStorage reads a 256-bit storage word. Absent keys read as zero.
func (s *AccountStore) GetStorage(addr types.Address, key types.Hash) *uint256.Int {
	st, ok := s.storage[addr]
	if !ok {
		return uint256.NewInt(0)
	}
	enc, err := st.Get(crypto.Keccak256(key[:]))
	if err != nil {
		return uint256.NewInt(0)
	}
	var raw []byte
	if err := rlp.DecodeBytes(enc, &raw); err != nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).SetBytes(raw)
}

// PutStorage writes a 256-bit storage word. A zero value deletes the key.
// The owning account's storage root is updated in the account trie.
func (s *AccountStore) PutStorage(addr types.Address, key types.Hash, value *uint256.Int) error {
	st, ok := s.storage[addr]
	if !ok {
		st = trie.New()
		s.storage[addr] = st
	}
	hashedKey := crypto.Keccak256(key[:])
	if value == nil || value.IsZero() {
		if err := st.Delete(hashedKey); err != nil {
			return err
		}
	} else {
		enc, err := rlp.EncodeToBytes(value.Bytes())
		if err != nil {
			return err
		}
		if err := st.Put(hashedKey, enc); err != nil {
			return err
		}
	}

	acct, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = newEmptyAccount()
	}
	acct.Root = st.Hash()
	return s.PutAccount(addr, acct)
}

// StorageRoot returns the root of an account's storage trie.
func (s *AccountStore) StorageRoot(addr types.Address) types.Hash {
	if st, ok := s.storage[addr]; ok {
		return st.Hash()
	}
	return types.EmptyRootHash
}

// ClearStorage drops every storage entry of the account.
func (s *AccountStore) ClearStorage(addr types.Address) {
	delete(s.storage, addr)
}

// PutCode writes code to the content-addressed store under Keccak256(code)
// and points the account's code hash at it.
func (s *AccountStore) PutCode(addr types.Address, code []byte) error {
	codeHash := crypto.Keccak256Hash(code)
	if err := rawdb.WriteCode(s.db, codeHash, code); err != nil {
		return err
	}
	acct, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = newEmptyAccount()
	}
	acct.CodeHash = codeHash[:]
	return s.PutAccount(addr, acct)
}

// GetCode returns the account's code, or empty bytes for a simple account.
// A code hash naming absent code is unrecoverable.
func (s *AccountStore) GetCode(addr types.Address) ([]byte, error) {
	acct, err := s.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil || isEmptyCodeHash(acct.CodeHash) {
		return nil, nil
	}
	var codeHash [32]byte
	copy(codeHash[:], acct.CodeHash)
	code, err := rawdb.ReadCode(s.db, codeHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrMissingCode, codeHash)
	}
	return code, nil
}

// GetCodeByHash reads a code blob from the content-addressed store.
func (s *AccountStore) GetCodeByHash(codeHash types.Hash) ([]byte, error) {
	if codeHash == types.EmptyCodeHash {
		return nil, nil
	}
	code, err := rawdb.ReadCode(s.db, codeHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrMissingCode, codeHash)
	}
	return code, nil
}

// Root returns the world-state root committing to every account.
func (s *AccountStore) Root() types.Hash {
	return s.trie.Hash()
}

// Copy returns an independent view of the state. Tries share structure
// copy-on-write, so mutations of either view never affect the other; the
// code store is content-addressed and shared.
func (s *AccountStore) Copy() *AccountStore {
	cp := &AccountStore{
		trie:    s.trie.Copy(),
		storage: make(map[types.Address]*trie.Trie, len(s.storage)),
		db:      s.db,
	}
	for addr, st := range s.storage {
		cp.storage[addr] = st.Copy()
	}
	return cp
}

func newEmptyAccount() *types.Account {
	return &types.Account{
		Balance:  new(big.Int),
		Root:     types.EmptyRootHash,
		CodeHash: types.EmptyCodeHash.Bytes(),
	}
}

func isEmptyCodeHash(codeHash []byte) bool {
	return len(codeHash) == 0 || types.BytesToHash(codeHash) == types.EmptyCodeHash
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
