package state

import "github.com/mana-ethereum/mana/core/types"

// journalEntry is a revertible staged-state change.
type journalEntry interface {
	revert(db *StagingDB)
}

// journal tracks staged mutations for snapshot/revert. It is the rollback
// unit for failed sub-calls; discarding the whole StagingDB discards the
// journal with it.
type journal struct {
	entries   []journalEntry
	snapshots map[int]int // snapshot ID -> entry index
	nextID    int
}

func newJournal() *journal {
	return &journal{snapshots: make(map[int]int)}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) snapshot() int {
	id := j.nextID
	j.nextID++
	j.snapshots[id] = len(j.entries)
	return id
}

func (j *journal) revertToSnapshot(id int, db *StagingDB) {
	idx, ok := j.snapshots[id]
	if !ok {
		return
	}
	for i := len(j.entries) - 1; i >= idx; i-- {
		j.entries[i].revert(db)
	}
	j.entries = j.entries[:idx]

	for sid := range j.snapshots {
		if sid >= id {
			delete(j.snapshots, sid)
		}
	}
}

// accountChange restores the previous staged entry of an account.
type accountChange struct {
	addr       types.Address
	prev       *stagedAccount
	prevExists bool
}

func (ch accountChange) revert(db *StagingDB) {
	if ch.prevExists {
		db.accounts[ch.addr] = ch.prev
	} else {
		delete(db.accounts, ch.addr)
	}
}

// storageChange restores the previous staged value of one storage slot.
type storageChange struct {
	addr types.Address
	key  types.Hash
	prev *storageSlot
}

func (ch storageChange) revert(db *StagingDB) {
	if slots, ok := db.storage[ch.addr]; ok {
		slots[ch.key] = ch.prev
	}
}

// storageWipe restores an account's staged storage after ResetAccount or
// DeleteAccount dropped it.
type storageWipe struct {
	addr types.Address
	prev map[types.Hash]*storageSlot
}

func (ch storageWipe) revert(db *StagingDB) {
	if ch.prev == nil {
		delete(db.storage, ch.addr)
	} else {
		db.storage[ch.addr] = ch.prev
	}
}
