package crypto

import (
	"errors"
	"math/big"

	"github.com/mana-ethereum/mana/rlp"
)

var (
	errInvalidSig = errors.New("crypto: invalid signature")
	errNoRecovery = errors.New("crypto: public key recovery failed")
)

// RecoverPlain recovers the sender address from an ECDSA signature over
// sighash. v is the normalized recovery id (0 or 1); callers translate
// legacy (27/28) and EIP-155 (35+2*chainID+recid) encodings before calling.
func RecoverPlain(sighash [32]byte, r, s *big.Int, v byte, homestead bool) ([20]byte, error) {
	var addr [20]byte
	if v > 1 {
		return addr, errInvalidSig
	}
	if !ValidateSignatureValues(v, r, s, homestead) {
		return addr, errInvalidSig
	}

	pub, err := recoverPubkey(sighash[:], r, s, v)
	if err != nil {
		return addr, err
	}
	return PubkeyToAddress(pub), nil
}

// Ecrecover recovers the uncompressed 65-byte public key from a message hash
// and a 65-byte [R || S || V] signature with V in {0, 1}.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	if len(hash) != 32 || len(sig) != 65 {
		return nil, errInvalidSig
	}
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	return recoverPubkey(hash, r, s, sig[64])
}

// PubkeyToAddress derives the account address from an uncompressed 65-byte
// public key: Keccak256(pub[1:])[12:].
func PubkeyToAddress(pub []byte) [20]byte {
	var addr [20]byte
	hash := Keccak256(pub[1:])
	copy(addr[:], hash[12:])
	return addr
}

// NormalizeV converts a transaction's raw V field into a curve recovery id
// (0 or 1) plus whether EIP-155 replay protection was used and the chain ID
// it committed to (0 if none).
func NormalizeV(v *big.Int) (recovery byte, chainID uint64, eip155 bool, err error) {
	if v == nil {
		return 0, 0, false, errInvalidSig
	}
	if v.BitLen() > 64 {
		return 0, 0, false, errInvalidSig
	}
	vVal := v.Uint64()
	switch {
	case vVal == 27 || vVal == 28:
		return byte(vVal - 27), 0, false, nil
	case vVal >= 35:
		chainID = (vVal - 35) / 2
		recovery = byte((vVal - 35) % 2)
		return recovery, chainID, true, nil
	default:
		return 0, 0, false, errInvalidSig
	}
}

// Sign produces an ECDSA signature over digest with the given private key.
// The nonce is derived deterministically from the key and digest, so signing
// is reproducible. Returns r, s and the recovery id v in {0, 1}, with s
// normalized to the lower half of the curve order per EIP-2.
func Sign(digest [32]byte, priv *big.Int) (r, s *big.Int, v byte, err error) {
	if priv == nil || priv.Sign() <= 0 || priv.Cmp(secp256k1N) >= 0 {
		return nil, nil, 0, errInvalidSig
	}
	e := new(big.Int).SetBytes(digest[:])

	// Deterministic nonce, rehashed until it lands in [1, n).
	seed := Keccak256(priv.Bytes(), digest[:])
	for {
		k := new(big.Int).SetBytes(seed)
		k.Mod(k, secp256k1N)
		if k.Sign() == 0 {
			seed = Keccak256(seed)
			continue
		}

		rx, ry := scalarMult(secp256k1Gx, secp256k1Gy, k)
		r = new(big.Int).Mod(rx, secp256k1N)
		if r.Sign() == 0 {
			seed = Keccak256(seed)
			continue
		}

		kInv := new(big.Int).ModInverse(k, secp256k1N)
		s = new(big.Int).Mul(priv, r)
		s.Add(s, e)
		s.Mul(s, kInv)
		s.Mod(s, secp256k1N)
		if s.Sign() == 0 {
			seed = Keccak256(seed)
			continue
		}

		v = byte(ry.Bit(0))
		// Low-s normalization flips the recovery id.
		halfN := new(big.Int).Rsh(secp256k1N, 1)
		if s.Cmp(halfN) > 0 {
			s.Sub(secp256k1N, s)
			v ^= 1
		}
		return r, s, v, nil
	}
}

// PrivToPubkey returns the uncompressed 65-byte public key for a private key.
func PrivToPubkey(priv *big.Int) []byte {
	x, y := scalarMult(secp256k1Gx, secp256k1Gy, priv)
	pub := make([]byte, 65)
	pub[0] = 0x04
	xb, yb := x.Bytes(), y.Bytes()
	copy(pub[1+32-len(xb):33], xb)
	copy(pub[33+32-len(yb):65], yb)
	return pub
}

// CreateAddress derives the address of a newly created contract:
// Keccak256(RLP([sender, nonce]))[12:].
func CreateAddress(sender [20]byte, nonce uint64) [20]byte {
	addrEnc, _ := rlp.EncodeToBytes(sender)
	nonceEnc := rlp.AppendUint64(nil, nonce)
	payload := append(append([]byte{}, addrEnc...), nonceEnc...)
	encoded := rlp.WrapList(payload)
	var out [20]byte
	hash := Keccak256(encoded)
	copy(out[:], hash[12:])
	return out
}
