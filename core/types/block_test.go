package types

import (
	"bytes"
	"math/big"
	"testing"
)

func sampleHeader(number int64) *Header {
	return &Header{
		ParentHash:  HexToHash("1111111111111111111111111111111111111111111111111111111111111111"),
		UncleHash:   EmptyUncleHash,
		Coinbase:    HexToAddress("00000000000000000000000000000000000000cb"),
		Root:        HexToHash("2222222222222222222222222222222222222222222222222222222222222222"),
		TxHash:      EmptyRootHash,
		ReceiptHash: EmptyRootHash,
		Difficulty:  big.NewInt(131_072),
		Number:      big.NewInt(number),
		GasLimit:    1_000_000,
		GasUsed:     21000,
		Time:        1_438_269_988,
		Extra:       []byte("test"),
		MixDigest:   HexToHash("3333333333333333333333333333333333333333333333333333333333333333"),
		Nonce:       BlockNonce{0, 0, 0, 0, 0, 0, 0, 0x42},
	}
}

func TestHeaderRLPRoundTrip(t *testing.T) {
	h := sampleHeader(5)
	enc, err := h.EncodeRLP()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := DecodeHeaderRLP(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	enc2, err := dec.EncodeRLP()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, enc2) {
		t.Fatal("header roundtrip not bit-identical")
	}
	if dec.Hash() != h.Hash() {
		t.Fatal("header hash changed through roundtrip")
	}
	if dec.GasLimit != h.GasLimit || dec.Time != h.Time || dec.Nonce != h.Nonce {
		t.Fatal("header fields lost")
	}
}

func TestBlockRLPRoundTrip(t *testing.T) {
	to := HexToAddress("00000000000000000000000000000000000000aa")
	txs := []*Transaction{
		{
			Nonce:    0,
			GasPrice: big.NewInt(1),
			Gas:      21000,
			To:       &to,
			Value:    big.NewInt(10),
			V:        big.NewInt(27),
			R:        big.NewInt(7),
			S:        big.NewInt(8),
		},
		{
			Nonce:    1,
			GasPrice: big.NewInt(1),
			Gas:      60000,
			To:       nil,
			Value:    new(big.Int),
			Data:     []byte{0x60, 0x00},
			V:        big.NewInt(28),
			R:        big.NewInt(9),
			S:        big.NewInt(10),
		},
	}
	ommer := sampleHeader(4)
	block := NewBlock(sampleHeader(5), &Body{Transactions: txs, Uncles: []*Header{ommer}})

	enc, err := block.EncodeRLP()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := DecodeBlockRLP(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	enc2, err := dec.EncodeRLP()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, enc2) {
		t.Fatal("block roundtrip not bit-identical")
	}
	if dec.Hash() != block.Hash() {
		t.Fatal("block hash changed through roundtrip")
	}
	if len(dec.Transactions()) != 2 || len(dec.Uncles()) != 1 {
		t.Fatal("body lost")
	}
	if dec.Transactions()[1].Hash() != txs[1].Hash() {
		t.Fatal("transaction changed through roundtrip")
	}
	if dec.Uncles()[0].Hash() != ommer.Hash() {
		t.Fatal("ommer changed through roundtrip")
	}
}

func TestBlockAccessors(t *testing.T) {
	header := sampleHeader(9)
	block := NewBlock(header, nil)

	if block.NumberU64() != 9 || block.GasLimit() != header.GasLimit {
		t.Fatal("accessor mismatch")
	}
	if block.Hash() != header.Hash() {
		t.Fatal("block hash differs from header hash")
	}
	if block.ParentHash() != header.ParentHash || block.Coinbase() != header.Coinbase {
		t.Fatal("accessor mismatch")
	}

	// Header() returns a copy: mutating it must not affect the block.
	h := block.Header()
	h.GasLimit = 1
	if block.GasLimit() != header.GasLimit {
		t.Fatal("header copy shares state with block")
	}
}
