package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/mana-ethereum/mana/core/types"
	"github.com/mana-ethereum/mana/crypto"
)

// stagedAccount is one entry of the write-through account cache: the staged
// account value, the code written this transaction (nil if untouched), and
// whether the account is staged for deletion.
type stagedAccount struct {
	account *types.Account
	code    []byte
	deleted bool

	// storageWiped marks that the account's pre-transaction storage is
	// gone (reset or deletion); slot reads stop falling through.
	storageWiped bool
}

func (e *stagedAccount) copy() *stagedAccount {
	if e == nil {
		return nil
	}
	cp := &stagedAccount{deleted: e.deleted, storageWiped: e.storageWiped}
	if e.account != nil {
		acct := *e.account
		acct.Balance = new(big.Int).Set(bigOrZero(e.account.Balance))
		acct.CodeHash = append([]byte(nil), e.account.CodeHash...)
		cp.account = &acct
	}
	if e.code != nil {
		cp.code = append([]byte(nil), e.code...)
	}
	return cp
}

// storageSlot tracks one storage key through a transaction: the value before
// the transaction began and the staged value. nil means absent (deleted).
type storageSlot struct {
	initial *uint256.Int
	current *uint256.Int
}

func (sl *storageSlot) copy() *storageSlot {
	if sl == nil {
		return nil
	}
	cp := &storageSlot{}
	if sl.initial != nil {
		cp.initial = new(uint256.Int).Set(sl.initial)
	}
	if sl.current != nil {
		cp.current = new(uint256.Int).Set(sl.current)
	}
	return cp
}

// StagingDB is the write-through cache layered over an AccountStore for the
// duration of one transaction. Reads consult the cache then the backing
// store; writes touch only the cache until Commit. Discarding the StagingDB
// without committing leaves the backing store untouched; Snapshot and
// RevertToSnapshot roll back failed sub-calls within the transaction.
type StagingDB struct {
	store    *AccountStore
	accounts map[types.Address]*stagedAccount
	storage  map[types.Address]map[types.Hash]*storageSlot
	journal  *journal
}

// NewStagingDB creates a staging repository over the given backing store.
func NewStagingDB(store *AccountStore) *StagingDB {
	return &StagingDB{
		store:    store,
		accounts: make(map[types.Address]*stagedAccount),
		storage:  make(map[types.Address]map[types.Hash]*storageSlot),
		journal:  newJournal(),
	}
}

// Store returns the backing account store.
func (db *StagingDB) Store() *AccountStore { return db.store }

// load brings an account into the cache, recording nil for a missing one.
func (db *StagingDB) load(addr types.Address) (*stagedAccount, error) {
	if entry, ok := db.accounts[addr]; ok {
		return entry, nil
	}
	acct, err := db.store.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	entry := &stagedAccount{account: acct, deleted: acct == nil}
	db.accounts[addr] = entry
	return entry, nil
}

// touch journals the previous staged value of addr before a mutation.
func (db *StagingDB) touch(addr types.Address) {
	prev, ok := db.accounts[addr]
	db.journal.append(accountChange{addr: addr, prev: prev.copy(), prevExists: ok})
}

// Account returns the staged view of an account, or nil if absent.
func (db *StagingDB) Account(addr types.Address) (*types.Account, error) {
	entry, err := db.load(addr)
	if err != nil {
		return nil, err
	}
	if entry.deleted || entry.account == nil {
		return nil, nil
	}
	return entry.account, nil
}

// Exists reports whether the address currently holds an account.
func (db *StagingDB) Exists(addr types.Address) bool {
	acct, err := db.Account(addr)
	return err == nil && acct != nil
}

// Empty reports whether the account is empty per EIP-161: zero nonce, zero
// balance, no code. A missing account is empty.
func (db *StagingDB) Empty(addr types.Address) bool {
	acct, err := db.Account(addr)
	if err != nil || acct == nil {
		return true
	}
	return acct.Nonce == 0 && acct.Balance.Sign() == 0 && isEmptyCodeHash(acct.CodeHash)
}

// AddWei adjusts the staged balance by delta, treating a missing account as
// empty. Fails with ErrBalanceUnderflow when the result would be negative.
func (db *StagingDB) AddWei(addr types.Address, delta *big.Int) error {
	entry, err := db.load(addr)
	if err != nil {
		return err
	}
	acct := entry.account
	if acct == nil || entry.deleted {
		acct = newEmptyAccount()
	}
	balance := new(big.Int).Add(acct.Balance, delta)
	if balance.Sign() < 0 {
		return fmt.Errorf("%w: %v%+v", ErrBalanceUnderflow, acct.Balance, delta)
	}
	db.touch(addr)
	acct.Balance = balance
	db.accounts[addr] = &stagedAccount{account: acct, code: entry.code, storageWiped: entry.storageWiped}
	return nil
}

// Transfer moves value between staged accounts under the same rules as
// AccountStore.Transfer. Either both sides update or neither does.
func (db *StagingDB) Transfer(from, to types.Address, value *big.Int) error {
	if value.Sign() < 0 {
		return ErrNegativeTransfer
	}
	sender, err := db.Account(from)
	if err != nil {
		return err
	}
	if sender == nil {
		return ErrMissingSender
	}
	if sender.Balance.Cmp(value) < 0 {
		return fmt.Errorf("%w: have %v, want %v", ErrInsufficientBalance, sender.Balance, value)
	}
	if err := db.AddWei(from, new(big.Int).Neg(value)); err != nil {
		return err
	}
	return db.AddWei(to, value)
}

// IncrementNonce bumps the staged nonce, creating an empty account if needed.
func (db *StagingDB) IncrementNonce(addr types.Address) error {
	entry, err := db.load(addr)
	if err != nil {
		return err
	}
	acct := entry.account
	if acct == nil || entry.deleted {
		acct = newEmptyAccount()
	}
	db.touch(addr)
	acct.Nonce++
	db.accounts[addr] = &stagedAccount{account: acct, code: entry.code, storageWiped: entry.storageWiped}
	return nil
}

// PutCode stages code for the account and updates its code hash.
func (db *StagingDB) PutCode(addr types.Address, code []byte) error {
	entry, err := db.load(addr)
	if err != nil {
		return err
	}
	acct := entry.account
	if acct == nil || entry.deleted {
		acct = newEmptyAccount()
	}
	db.touch(addr)
	codeHash := crypto.Keccak256Hash(code)
	acct.CodeHash = codeHash[:]
	db.accounts[addr] = &stagedAccount{account: acct, code: append([]byte(nil), code...), storageWiped: entry.storageWiped}
	return nil
}

// GetCode returns the staged code for an account, falling back to the
// content-addressed store.
func (db *StagingDB) GetCode(addr types.Address) ([]byte, error) {
	entry, err := db.load(addr)
	if err != nil {
		return nil, err
	}
	if entry.deleted || entry.account == nil {
		return nil, nil
	}
	if entry.code != nil {
		return entry.code, nil
	}
	if isEmptyCodeHash(entry.account.CodeHash) {
		return nil, nil
	}
	return db.store.GetCodeByHash(types.BytesToHash(entry.account.CodeHash))
}

// ResetAccount replaces the account with a fresh empty one, dropping any
// staged storage. Used when deploying a contract to an address.
func (db *StagingDB) ResetAccount(addr types.Address) error {
	if _, err := db.load(addr); err != nil {
		return err
	}
	db.touch(addr)
	db.journal.append(storageWipe{addr: addr, prev: db.storage[addr]})
	db.accounts[addr] = &stagedAccount{account: newEmptyAccount(), storageWiped: true}
	delete(db.storage, addr)
	return nil
}

// ClearBalance zeroes the staged balance, returning the amount removed.
func (db *StagingDB) ClearBalance(addr types.Address) (*big.Int, error) {
	acct, err := db.Account(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return new(big.Int), nil
	}
	amount := new(big.Int).Set(acct.Balance)
	if err := db.AddWei(addr, new(big.Int).Neg(amount)); err != nil {
		return nil, err
	}
	return amount, nil
}

// DeleteAccount stages the account for removal (self-destruct reaping and
// empty-account cleanup).
func (db *StagingDB) DeleteAccount(addr types.Address) error {
	if _, err := db.load(addr); err != nil {
		return err
	}
	db.touch(addr)
	db.journal.append(storageWipe{addr: addr, prev: db.storage[addr]})
	db.accounts[addr] = &stagedAccount{deleted: true, storageWiped: true}
	delete(db.storage, addr)
	return nil
}

// slot loads a storage slot into the cache, capturing its pre-transaction
// value the first time it is touched.
func (db *StagingDB) slot(addr types.Address, key types.Hash) *storageSlot {
	slots, ok := db.storage[addr]
	if !ok {
		slots = make(map[types.Hash]*storageSlot)
		db.storage[addr] = slots
	}
	if sl, ok := slots[key]; ok {
		return sl
	}
	sl := &storageSlot{}
	entry := db.accounts[addr]
	if entry == nil || !entry.storageWiped {
		if v := db.store.GetStorage(addr, key); !v.IsZero() {
			sl.initial = v
			sl.current = new(uint256.Int).Set(v)
		}
	}
	slots[key] = sl
	return sl
}

// PutStorage stages a 256-bit storage write. A zero value stages a deletion.
func (db *StagingDB) PutStorage(addr types.Address, key types.Hash, value *uint256.Int) {
	sl := db.slot(addr, key)
	db.journal.append(storageChange{addr: addr, key: key, prev: sl.copy()})
	if value == nil || value.IsZero() {
		sl.current = nil
	} else {
		sl.current = new(uint256.Int).Set(value)
	}
}

// RemoveStorage stages the deletion of a storage key.
func (db *StagingDB) RemoveStorage(addr types.Address, key types.Hash) {
	db.PutStorage(addr, key, nil)
}

// CurrentValue returns the staged value of a storage key, zero if absent.
func (db *StagingDB) CurrentValue(addr types.Address, key types.Hash) *uint256.Int {
	sl := db.slot(addr, key)
	if sl.current == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(sl.current)
}

// InitialValue returns the value a storage key held when the transaction
// began, zero if it was absent.
func (db *StagingDB) InitialValue(addr types.Address, key types.Hash) *uint256.Int {
	sl := db.slot(addr, key)
	if sl.initial == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(sl.initial)
}

// Snapshot marks a rollback point for a sub-call.
func (db *StagingDB) Snapshot() int {
	return db.journal.snapshot()
}

// RevertToSnapshot undoes every staged change since the snapshot.
func (db *StagingDB) RevertToSnapshot(id int) {
	db.journal.revertToSnapshot(id, db)
}

// CommitAccounts flushes every cached account entry through the backing
// store: deletions delete, everything else is written back, along with any
// staged code.
func (db *StagingDB) CommitAccounts() error {
	for addr, entry := range db.accounts {
		if entry.deleted || entry.account == nil {
			if err := db.store.DeleteAccount(addr); err != nil {
				return err
			}
			continue
		}
		acct := *entry.account
		acct.Root = db.store.StorageRoot(addr)
		if err := db.store.PutAccount(addr, &acct); err != nil {
			return err
		}
		if entry.code != nil {
			if err := db.store.PutCode(addr, entry.code); err != nil {
				return err
			}
		}
	}
	return nil
}

// CommitStorage flushes every staged storage change, deleting zero values.
func (db *StagingDB) CommitStorage() error {
	for addr, entry := range db.accounts {
		if entry.storageWiped {
			db.store.ClearStorage(addr)
		}
	}
	for addr, slots := range db.storage {
		entry := db.accounts[addr]
		if entry != nil && (entry.deleted || entry.account == nil) {
			continue
		}
		for key, sl := range slots {
			if err := db.store.PutStorage(addr, key, sl.current); err != nil {
				return err
			}
		}
	}
	return nil
}

// Commit flushes storage then accounts, so each written account carries the
// storage root its flushed slots produce.
func (db *StagingDB) Commit() error {
	if err := db.CommitStorage(); err != nil {
		return err
	}
	return db.CommitAccounts()
}
