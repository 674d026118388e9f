package rawdb

import (
	"bytes"
	"testing"
)

func TestBlockAccessors(t *testing.T) {
	db := NewMemoryDB()
	var hash [32]byte
	hash[31] = 0xab
	payload := []byte("serialized block")

	if HasBlock(db, hash) {
		t.Fatal("phantom block")
	}
	if err := WriteBlock(db, hash, payload); err != nil {
		t.Fatal(err)
	}
	got, err := ReadBlock(db, hash)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("block roundtrip: %q, %v", got, err)
	}
	if !HasBlock(db, hash) {
		t.Fatal("written block not found")
	}
}

func TestNumberIndexKeyFormat(t *testing.T) {
	db := NewMemoryDB()
	var hash [32]byte
	hash[0] = 0x01

	if err := WriteNumberIndex(db, 1234, hash); err != nil {
		t.Fatal(err)
	}

	// The secondary index lives under a literal decimal key.
	raw, err := db.Get([]byte("hash_for_1234"))
	if err != nil {
		t.Fatalf("literal key lookup: %v", err)
	}
	if !bytes.Equal(raw, hash[:]) {
		t.Fatalf("index payload: %x", raw)
	}

	got, err := ReadNumberIndex(db, 1234)
	if err != nil || got != hash {
		t.Fatalf("index roundtrip: %x, %v", got, err)
	}
	if _, err := ReadNumberIndex(db, 99); err == nil {
		t.Fatal("phantom index entry")
	}
}

func TestBestBlockPointer(t *testing.T) {
	db := NewMemoryDB()
	var hash [32]byte
	hash[7] = 0x77

	if _, err := ReadBestBlockHash(db); err == nil {
		t.Fatal("best block present on empty db")
	}
	if err := WriteBestBlockHash(db, hash); err != nil {
		t.Fatal(err)
	}
	got, err := ReadBestBlockHash(db)
	if err != nil || got != hash {
		t.Fatalf("best block roundtrip: %x, %v", got, err)
	}
}

func TestHeaderAndCodeAccessors(t *testing.T) {
	db := NewMemoryDB()
	var hash, codeHash [32]byte
	hash[0] = 1
	codeHash[0] = 2

	if err := WriteHeader(db, 7, hash, []byte("header rlp")); err != nil {
		t.Fatal(err)
	}
	data, err := ReadHeader(db, 7, hash)
	if err != nil || !bytes.Equal(data, []byte("header rlp")) {
		t.Fatalf("header roundtrip: %q, %v", data, err)
	}
	num, err := ReadHeaderNumber(db, hash)
	if err != nil || num != 7 {
		t.Fatalf("header number: %d, %v", num, err)
	}

	code := []byte{0x60, 0x00, 0xf3}
	if err := WriteCode(db, codeHash, code); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCode(db, codeHash)
	if err != nil || !bytes.Equal(got, code) {
		t.Fatalf("code roundtrip: %x, %v", got, err)
	}
	if !HasCode(db, codeHash) {
		t.Fatal("written code not found")
	}
}

func TestMemoryDBIterator(t *testing.T) {
	db := NewMemoryDB()
	db.Put([]byte("a1"), []byte("x"))
	db.Put([]byte("a2"), []byte("y"))
	db.Put([]byte("b1"), []byte("z"))

	it := db.NewIterator([]byte("a"))
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if len(keys) != 2 || keys[0] != "a1" || keys[1] != "a2" {
		t.Fatalf("prefix iteration: %v", keys)
	}
}

func TestBatchWrite(t *testing.T) {
	db := NewMemoryDB()
	batch := db.NewBatch()
	batch.Put([]byte("k1"), []byte("v1"))
	batch.Put([]byte("k2"), []byte("v2"))
	batch.Delete([]byte("k1"))

	// Nothing lands until Write.
	if ok, _ := db.Has([]byte("k2")); ok {
		t.Fatal("batch wrote through early")
	}
	if err := batch.Write(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.Has([]byte("k1")); ok {
		t.Fatal("batched delete lost")
	}
	got, err := db.Get([]byte("k2"))
	if err != nil || !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("batched put lost: %q, %v", got, err)
	}
}
