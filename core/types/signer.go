package types

import (
	"errors"
	"math/big"

	"github.com/mana-ethereum/mana/crypto"
	"github.com/mana-ethereum/mana/rlp"
)

var (
	errInvalidSig     = errors.New("invalid transaction signature")
	errInvalidChainID = errors.New("invalid chain ID for signer")
)

// Signer hashes transactions for signing and recovers the sender address
// from a transaction's signature values.
type Signer interface {
	// Sender recovers the sender address from the transaction's signature.
	Sender(tx *Transaction) (Address, error)

	// Hash returns the hash that must be signed to authorize the transaction.
	Hash(tx *Transaction) Hash

	// SignatureValues converts a 65-byte [R || S || V] raw signature into
	// the v, r, s values stored on the wire for this signing scheme.
	SignatureValues(sig []byte) (v, r, s *big.Int, err error)
}

// FrontierSigner implements the original signing scheme: v is 27 or 28 and
// the signing hash does not commit to a chain ID.
type FrontierSigner struct{}

func (FrontierSigner) Hash(tx *Transaction) Hash {
	return sigHash(tx, nil)
}

func (FrontierSigner) Sender(tx *Transaction) (Address, error) {
	recovery, _, eip155, err := crypto.NormalizeV(tx.V)
	if err != nil || eip155 {
		return Address{}, errInvalidSig
	}
	addr, err := crypto.RecoverPlain(sigHash(tx, nil), tx.R, tx.S, recovery, false)
	return Address(addr), err
}

func (FrontierSigner) SignatureValues(sig []byte) (v, r, s *big.Int, err error) {
	r, s, recid, err := parseRawSignature(sig)
	if err != nil {
		return nil, nil, nil, err
	}
	return big.NewInt(int64(recid) + 27), r, s, nil
}

// HomesteadSigner is FrontierSigner plus the EIP-2 low-s rule.
type HomesteadSigner struct{ FrontierSigner }

func (hs HomesteadSigner) Sender(tx *Transaction) (Address, error) {
	recovery, _, eip155, err := crypto.NormalizeV(tx.V)
	if err != nil || eip155 {
		return Address{}, errInvalidSig
	}
	addr, err := crypto.RecoverPlain(sigHash(tx, nil), tx.R, tx.S, recovery, true)
	return Address(addr), err
}

// EIP155Signer implements replay-protected signing: the signing hash commits
// to the chain ID and v encodes it as chainID*2 + 35 + recid. Unprotected
// (27/28) signatures remain valid for backward compatibility.
type EIP155Signer struct {
	chainID *big.Int
}

// NewEIP155Signer creates a signer bound to the given chain ID.
func NewEIP155Signer(chainID uint64) EIP155Signer {
	return EIP155Signer{chainID: new(big.Int).SetUint64(chainID)}
}

// ChainID returns the chain ID this signer commits to.
func (s EIP155Signer) ChainID() uint64 { return s.chainID.Uint64() }

func (s EIP155Signer) Hash(tx *Transaction) Hash {
	return sigHash(tx, s.chainID)
}

func (s EIP155Signer) Sender(tx *Transaction) (Address, error) {
	recovery, chainID, eip155, err := crypto.NormalizeV(tx.V)
	if err != nil {
		return Address{}, err
	}
	if !eip155 {
		addr, err := crypto.RecoverPlain(sigHash(tx, nil), tx.R, tx.S, recovery, true)
		return Address(addr), err
	}
	if chainID != s.chainID.Uint64() {
		return Address{}, errInvalidChainID
	}
	addr, err := crypto.RecoverPlain(sigHash(tx, s.chainID), tx.R, tx.S, recovery, true)
	return Address(addr), err
}

func (s EIP155Signer) SignatureValues(sig []byte) (v, r, s2 *big.Int, err error) {
	r, s2, recid, err := parseRawSignature(sig)
	if err != nil {
		return nil, nil, nil, err
	}
	v = new(big.Int).Mul(s.chainID, big.NewInt(2))
	v.Add(v, big.NewInt(int64(recid)+35))
	return v, r, s2, nil
}

// MakeSigner returns the signer matching the fork rules in effect.
func MakeSigner(chainID uint64, eip155, homestead bool) Signer {
	switch {
	case eip155:
		return NewEIP155Signer(chainID)
	case homestead:
		return HomesteadSigner{}
	default:
		return FrontierSigner{}
	}
}

// Sender recovers the transaction sender with the given signer, caching the
// result on the transaction so repeated validation skips the recovery.
func Sender(signer Signer, tx *Transaction) (Address, error) {
	if cached := tx.Sender(); cached != nil {
		return *cached, nil
	}
	addr, err := signer.Sender(tx)
	if err != nil {
		return Address{}, err
	}
	tx.SetSender(addr)
	return addr, nil
}

// SignTx signs the transaction with the given private key and signer,
// returning a copy carrying the signature.
func SignTx(tx *Transaction, signer Signer, priv *big.Int) (*Transaction, error) {
	h := signer.Hash(tx)
	r, s, recid, err := crypto.Sign(h, priv)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	rb, sb := r.Bytes(), s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	sig[64] = recid
	v, r, s, err := signer.SignatureValues(sig)
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(v, r, s), nil
}

// sigHash computes the signing hash of a transaction:
// Keccak256(RLP([nonce, gasPrice, gas, to, value, data])), with
// [chainID, 0, 0] appended when EIP-155 replay protection is in effect.
func sigHash(tx *Transaction, chainID *big.Int) Hash {
	var payload []byte
	payload = rlp.AppendUint64(payload, tx.Nonce)

	enc, _ := rlp.EncodeToBytes(bigOrZero(tx.GasPrice))
	payload = append(payload, enc...)
	payload = rlp.AppendUint64(payload, tx.Gas)
	payload = rlp.AppendBytes(payload, addressPtrToBytes(tx.To))
	enc, _ = rlp.EncodeToBytes(bigOrZero(tx.Value))
	payload = append(payload, enc...)
	payload = rlp.AppendBytes(payload, tx.Data)

	if chainID != nil && chainID.Sign() > 0 {
		enc, _ = rlp.EncodeToBytes(chainID)
		payload = append(payload, enc...)
		payload = append(payload, 0x80, 0x80)
	}

	return BytesToHash(crypto.Keccak256(rlp.WrapList(payload)))
}

// parseRawSignature validates a 65-byte [R || S || V] signature with V in {0, 1}.
func parseRawSignature(sig []byte) (r, s *big.Int, recid byte, err error) {
	if len(sig) != 65 {
		return nil, nil, 0, errInvalidSig
	}
	r = new(big.Int).SetBytes(sig[0:32])
	s = new(big.Int).SetBytes(sig[32:64])
	recid = sig[64]
	if recid > 1 || r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, 0, errInvalidSig
	}
	return r, s, recid, nil
}
