package types

import (
	"math/big"
	"sync/atomic"
	"unsafe"
)

// Transaction represents a classic (pre-EIP-2718) Ethereum transaction.
// There is a single wire shape; contract creation is signaled by a nil To.
type Transaction struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *Address // nil means contract creation
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int

	hash atomic.Pointer[Hash]
	size atomic.Uint64
	from atomic.Pointer[Address] // cached sender address, set by Sender()
}

// NewTransaction creates a new unsigned transaction.
func NewTransaction(nonce uint64, to *Address, value *big.Int, gas uint64, gasPrice *big.Int, data []byte) *Transaction {
	return &Transaction{
		Nonce:    nonce,
		To:       copyAddressPtr(to),
		Value:    new(big.Int).Set(value),
		Gas:      gas,
		GasPrice: new(big.Int).Set(gasPrice),
		Data:     copyBytes(data),
	}
}

// SetSender caches the sender address on the transaction, once it has been
// recovered from the signature, so repeated validation does not re-run
// the expensive recovery.
func (tx *Transaction) SetSender(addr Address) {
	a := addr
	tx.from.Store(&a)
}

// Sender returns the cached sender address, or nil if not yet set.
func (tx *Transaction) Sender() *Address {
	return tx.from.Load()
}

// ChainId derives the chain ID from the EIP-155 V value, or zero for a
// pre-EIP-155 signature.
func (tx *Transaction) ChainId() *big.Int { return deriveChainID(tx.V) }

// RawSignatureValues returns the V, R, S signature values of the transaction.
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) {
	return tx.V, tx.R, tx.S
}

// WithSignature returns a copy of the transaction with the given signature
// values set.
func (tx *Transaction) WithSignature(v, r, s *big.Int) *Transaction {
	cpy := tx.copy()
	cpy.V = new(big.Int).Set(v)
	cpy.R = new(big.Int).Set(r)
	cpy.S = new(big.Int).Set(s)
	return cpy
}

// Hash returns the transaction hash (Keccak-256 of the RLP encoding),
// caching on first call.
func (tx *Transaction) Hash() Hash {
	if h := tx.hash.Load(); h != nil {
		return *h
	}
	h := tx.hashRLP()
	tx.hash.Store(&h)
	return h
}

// Size returns the approximate memory footprint of the transaction.
func (tx *Transaction) Size() uint64 {
	if cached := tx.size.Load(); cached != 0 {
		return cached
	}
	s := uint64(unsafe.Sizeof(*tx)) + uint64(len(tx.Data))
	tx.size.Store(s)
	return s
}

// copy returns a deep copy of the transaction, excluding the cache fields.
func (tx *Transaction) copy() *Transaction {
	cpy := &Transaction{
		Nonce: tx.Nonce,
		Gas:   tx.Gas,
		To:    copyAddressPtr(tx.To),
		Data:  copyBytes(tx.Data),
	}
	if tx.GasPrice != nil {
		cpy.GasPrice = new(big.Int).Set(tx.GasPrice)
	}
	if tx.Value != nil {
		cpy.Value = new(big.Int).Set(tx.Value)
	}
	if tx.V != nil {
		cpy.V = new(big.Int).Set(tx.V)
	}
	if tx.R != nil {
		cpy.R = new(big.Int).Set(tx.R)
	}
	if tx.S != nil {
		cpy.S = new(big.Int).Set(tx.S)
	}
	return cpy
}

func copyAddressPtr(a *Address) *Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cpy := make([]byte, len(b))
	copy(cpy, b)
	return cpy
}

// deriveChainID derives the chain ID from a legacy V value per EIP-155
// (v = chainID*2 + 35 or v = chainID*2 + 36); returns zero for the
// pre-EIP-155 v = 27/28 encoding.
func deriveChainID(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.BitLen() <= 8 {
		val := v.Uint64()
		if val == 27 || val == 28 {
			return new(big.Int)
		}
	}
	chainID := new(big.Int).Sub(v, big.NewInt(35))
	chainID.Div(chainID, big.NewInt(2))
	return chainID
}
