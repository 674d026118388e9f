package types

import "math/big"

// Receipt status values (EIP-658, Byzantium and later).
const (
	ReceiptStatusFailed     = uint64(0)
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt represents the result of a transaction. Before Byzantium the first
// consensus field is the intermediate state root after the transaction;
// from Byzantium on it is a one-byte status code.
type Receipt struct {
	// Consensus fields
	PostState         []byte // 32-byte intermediate state root, pre-Byzantium only
	Status            uint64
	CumulativeGasUsed uint64
	Bloom             Bloom
	Logs              []*Log

	// Derived fields (filled in after block processing)
	TxHash           Hash
	ContractAddress  Address
	GasUsed          uint64
	BlockHash        Hash
	BlockNumber      *big.Int
	TransactionIndex uint
}

// NewReceipt creates a new receipt with the given status and cumulative gas.
func NewReceipt(status uint64, cumulativeGasUsed uint64) *Receipt {
	return &Receipt{
		Status:            status,
		CumulativeGasUsed: cumulativeGasUsed,
	}
}

// Succeeded reports whether the receipt indicates a successful transaction.
// Pre-Byzantium receipts carry no status; they report success.
func (r *Receipt) Succeeded() bool {
	if len(r.PostState) > 0 {
		return true
	}
	return r.Status == ReceiptStatusSuccessful
}

// DeriveReceiptFields populates the derived fields on a list of receipts
// after block processing. It sets the block context fields and per-log
// indices for each receipt in the block.
func DeriveReceiptFields(receipts []*Receipt, blockHash Hash, blockNumber uint64, txs []*Transaction) {
	var logIndex uint

	for i, receipt := range receipts {
		receipt.BlockHash = blockHash
		receipt.BlockNumber = new(big.Int).SetUint64(blockNumber)
		receipt.TransactionIndex = uint(i)

		if i < len(txs) {
			receipt.TxHash = txs[i].Hash()
		}

		for _, log := range receipt.Logs {
			log.BlockHash = blockHash
			log.BlockNumber = blockNumber
			log.TxIndex = uint(i)
			log.Index = logIndex
			if i < len(txs) {
				log.TxHash = txs[i].Hash()
			}
			logIndex++
		}
	}
}
