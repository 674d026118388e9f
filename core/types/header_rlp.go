package types

import (
	"math/big"

	"github.com/mana-ethereum/mana/rlp"
	"golang.org/x/crypto/sha3"
)

// EncodeRLP returns the RLP encoding of the header in Yellow Paper field
// order: [ParentHash, UncleHash, Coinbase, Root, TxHash, ReceiptHash, Bloom,
// Difficulty, Number, GasLimit, GasUsed, Time, Extra, MixDigest, Nonce].
func (h *Header) EncodeRLP() ([]byte, error) {
	var payload []byte
	payload = append(payload, rlp.EncodeBytes32(h.ParentHash)...)
	payload = append(payload, rlp.EncodeBytes32(h.UncleHash)...)
	payload = append(payload, rlp.EncodeBytes20(h.Coinbase)...)
	payload = append(payload, rlp.EncodeBytes32(h.Root)...)
	payload = append(payload, rlp.EncodeBytes32(h.TxHash)...)
	payload = append(payload, rlp.EncodeBytes32(h.ReceiptHash)...)

	bloomEnc, err := rlp.EncodeToBytes(h.Bloom)
	if err != nil {
		return nil, err
	}
	payload = append(payload, bloomEnc...)

	diffEnc, err := rlp.EncodeToBytes(bigIntOrZero(h.Difficulty))
	if err != nil {
		return nil, err
	}
	payload = append(payload, diffEnc...)

	numEnc, err := rlp.EncodeToBytes(bigIntOrZero(h.Number))
	if err != nil {
		return nil, err
	}
	payload = append(payload, numEnc...)

	payload = rlp.AppendUint64(payload, h.GasLimit)
	payload = rlp.AppendUint64(payload, h.GasUsed)
	payload = rlp.AppendUint64(payload, h.Time)
	payload = rlp.AppendBytes(payload, h.Extra)
	payload = append(payload, rlp.EncodeBytes32(h.MixDigest)...)

	nonceEnc, err := rlp.EncodeToBytes(h.Nonce)
	if err != nil {
		return nil, err
	}
	payload = append(payload, nonceEnc...)

	return rlp.WrapList(payload), nil
}

// bigIntOrZero returns v if non-nil, otherwise a zero big.Int.
func bigIntOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// DecodeHeaderRLP decodes an RLP-encoded header.
func DecodeHeaderRLP(data []byte) (*Header, error) {
	s := rlp.NewStreamFromBytes(data)
	if _, err := s.List(); err != nil {
		return nil, err
	}

	h := &Header{}
	var err error

	if err = decodeHash(s, &h.ParentHash); err != nil {
		return nil, err
	}
	if err = decodeHash(s, &h.UncleHash); err != nil {
		return nil, err
	}
	if err = decodeAddress(s, &h.Coinbase); err != nil {
		return nil, err
	}
	if err = decodeHash(s, &h.Root); err != nil {
		return nil, err
	}
	if err = decodeHash(s, &h.TxHash); err != nil {
		return nil, err
	}
	if err = decodeHash(s, &h.ReceiptHash); err != nil {
		return nil, err
	}
	if err = decodeBloom(s, &h.Bloom); err != nil {
		return nil, err
	}
	if h.Difficulty, err = s.BigInt(); err != nil {
		return nil, err
	}
	if h.Number, err = s.BigInt(); err != nil {
		return nil, err
	}
	if h.GasLimit, err = s.Uint64(); err != nil {
		return nil, err
	}
	if h.GasUsed, err = s.Uint64(); err != nil {
		return nil, err
	}
	if h.Time, err = s.Uint64(); err != nil {
		return nil, err
	}
	if h.Extra, err = s.Bytes(); err != nil {
		return nil, err
	}
	if err = decodeHash(s, &h.MixDigest); err != nil {
		return nil, err
	}
	if err = decodeBlockNonce(s, &h.Nonce); err != nil {
		return nil, err
	}

	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	if !s.AtListEnd() {
		return nil, rlp.ErrTrailingBytes
	}
	return h, nil
}

// decodeHash reads an RLP string into a Hash.
func decodeHash(s *rlp.Stream, h *Hash) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	copy(h[HashLength-len(b):], b)
	return nil
}

// decodeAddress reads an RLP string into an Address.
func decodeAddress(s *rlp.Stream, a *Address) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	copy(a[AddressLength-len(b):], b)
	return nil
}

// decodeBloom reads an RLP string into a Bloom.
func decodeBloom(s *rlp.Stream, bl *Bloom) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	bl.SetBytes(b)
	return nil
}

// decodeBlockNonce reads an RLP string into a BlockNonce.
func decodeBlockNonce(s *rlp.Stream, n *BlockNonce) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	copy(n[NonceLength-len(b):], b)
	return nil
}

// computeHeaderHash computes the Keccak-256 hash of the RLP-encoded header.
func computeHeaderHash(h *Header) Hash {
	enc, err := h.EncodeRLP()
	if err != nil {
		return Hash{}
	}
	d := sha3.NewLegacyKeccak256()
	d.Write(enc)
	var hash Hash
	copy(hash[:], d.Sum(nil))
	return hash
}
