package core

import (
	"github.com/mana-ethereum/mana/core/types"
	"github.com/mana-ethereum/mana/crypto"
	"github.com/mana-ethereum/mana/rlp"
	"github.com/mana-ethereum/mana/trie"
)

// DerivableList abstracts an ordered list whose items are committed to by a
// trie root: transactions and receipts.
type DerivableList interface {
	Len() int
	EncodeIndex(i int) ([]byte, error)
}

// DeriveSha builds a trie keyed by the RLP encoding of each item's index and
// returns its root. This is the commitment the transactions_root and
// receipts_root header fields carry.
func DeriveSha(list DerivableList) (types.Hash, error) {
	t := trie.New()
	for i := 0; i < list.Len(); i++ {
		key := rlp.AppendUint64(nil, uint64(i))
		value, err := list.EncodeIndex(i)
		if err != nil {
			return types.Hash{}, err
		}
		if err := t.Put(key, value); err != nil {
			return types.Hash{}, err
		}
	}
	return t.Hash(), nil
}

// txList adapts a transaction slice to DerivableList.
type txList []*types.Transaction

func (l txList) Len() int { return len(l) }

func (l txList) EncodeIndex(i int) ([]byte, error) { return l[i].EncodeRLP() }

// receiptList adapts a receipt slice to DerivableList.
type receiptList []*types.Receipt

func (l receiptList) Len() int { return len(l) }

func (l receiptList) EncodeIndex(i int) ([]byte, error) { return l[i].EncodeRLP() }

// CalcTxRoot computes the transactions root of a block body.
func CalcTxRoot(txs []*types.Transaction) (types.Hash, error) {
	return DeriveSha(txList(txs))
}

// CalcReceiptRoot computes the receipts root of a block's receipts.
func CalcReceiptRoot(receipts []*types.Receipt) (types.Hash, error) {
	return DeriveSha(receiptList(receipts))
}

// CalcOmmersHash computes Keccak256 of the RLP list of ommer headers.
func CalcOmmersHash(ommers []*types.Header) (types.Hash, error) {
	var payload []byte
	for _, h := range ommers {
		enc, err := h.EncodeRLP()
		if err != nil {
			return types.Hash{}, err
		}
		payload = append(payload, enc...)
	}
	return types.BytesToHash(crypto.Keccak256(rlp.WrapList(payload))), nil
}
