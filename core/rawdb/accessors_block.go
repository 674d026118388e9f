package rawdb

import "fmt"

// Accepted blocks are persisted under two keys: the header hash maps to the
// serialized block, and a per-number secondary index maps back to the hash
// of the accepted block at that height.

// numberIndexKey = "hash_for_" + decimal block number.
func numberIndexKey(number uint64) []byte {
	return []byte(fmt.Sprintf("hash_for_%d", number))
}

// bestBlockKey -> hash of the current best block.
var bestBlockKey = []byte("best_block")

// WriteBlock stores a serialized block under its header hash.
func WriteBlock(db KeyValueWriter, hash [32]byte, data []byte) error {
	return db.Put(hash[:], data)
}

// ReadBlock retrieves a serialized block by header hash.
func ReadBlock(db KeyValueReader, hash [32]byte) ([]byte, error) {
	return db.Get(hash[:])
}

// HasBlock checks whether a block is stored under the given hash.
func HasBlock(db KeyValueReader, hash [32]byte) bool {
	ok, _ := db.Has(hash[:])
	return ok
}

// WriteNumberIndex records hash as the accepted block at the given height.
func WriteNumberIndex(db KeyValueWriter, number uint64, hash [32]byte) error {
	return db.Put(numberIndexKey(number), hash[:])
}

// ReadNumberIndex retrieves the hash of the accepted block at a height.
func ReadNumberIndex(db KeyValueReader, number uint64) ([32]byte, error) {
	data, err := db.Get(numberIndexKey(number))
	if err != nil {
		return [32]byte{}, err
	}
	if len(data) != 32 {
		return [32]byte{}, ErrNotFound
	}
	var hash [32]byte
	copy(hash[:], data)
	return hash, nil
}

// WriteBestBlockHash stores the hash of the current best block.
func WriteBestBlockHash(db KeyValueWriter, hash [32]byte) error {
	return db.Put(bestBlockKey, hash[:])
}

// ReadBestBlockHash retrieves the hash of the current best block.
func ReadBestBlockHash(db KeyValueReader) ([32]byte, error) {
	data, err := db.Get(bestBlockKey)
	if err != nil {
		return [32]byte{}, err
	}
	if len(data) != 32 {
		return [32]byte{}, ErrNotFound
	}
	var hash [32]byte
	copy(hash[:], data)
	return hash, nil
}
