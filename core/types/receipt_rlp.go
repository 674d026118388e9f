package types

import (
	"fmt"

	"github.com/mana-ethereum/mana/rlp"
)

// EncodeRLP returns the RLP encoding of the receipt's consensus fields:
// [post_state_or_status, cumulative_gas_used, bloom, logs]. Pre-Byzantium
// receipts carry the 32-byte intermediate state root; later ones the status.
func (r *Receipt) EncodeRLP() ([]byte, error) {
	var payload []byte

	if len(r.PostState) > 0 {
		enc, err := rlp.EncodeToBytes(r.PostState)
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	} else {
		payload = rlp.AppendUint64(payload, r.Status)
	}
	payload = rlp.AppendUint64(payload, r.CumulativeGasUsed)

	bloomEnc, err := rlp.EncodeToBytes(r.Bloom)
	if err != nil {
		return nil, err
	}
	payload = append(payload, bloomEnc...)

	var logsPayload []byte
	for _, log := range r.Logs {
		enc, err := EncodeLogRLP(log)
		if err != nil {
			return nil, err
		}
		logsPayload = append(logsPayload, enc...)
	}
	payload = append(payload, rlp.WrapList(logsPayload)...)

	return rlp.WrapList(payload), nil
}

// DecodeReceiptRLP decodes an RLP-encoded receipt. The first field is read
// as a post-state root when it is a 32-byte string, a status code otherwise.
func DecodeReceiptRLP(data []byte) (*Receipt, error) {
	s := rlp.NewStreamFromBytes(data)
	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("receipt: decode list: %w", err)
	}

	r := &Receipt{}

	kind, size, err := s.Kind()
	if err != nil {
		return nil, fmt.Errorf("receipt: decode first field: %w", err)
	}
	if kind == rlp.String && size == HashLength {
		r.PostState, err = s.Bytes()
		if err != nil {
			return nil, err
		}
	} else {
		r.Status, err = s.Uint64()
		if err != nil {
			return nil, fmt.Errorf("receipt: decode status: %w", err)
		}
	}

	r.CumulativeGasUsed, err = s.Uint64()
	if err != nil {
		return nil, fmt.Errorf("receipt: decode cumulative gas: %w", err)
	}
	if err := decodeBloom(s, &r.Bloom); err != nil {
		return nil, fmt.Errorf("receipt: decode bloom: %w", err)
	}

	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("receipt: decode logs list: %w", err)
	}
	for !s.AtListEnd() {
		raw, err := s.RawItem()
		if err != nil {
			return nil, fmt.Errorf("receipt: read log: %w", err)
		}
		log, err := DecodeLogRLP(raw)
		if err != nil {
			return nil, fmt.Errorf("receipt: decode log: %w", err)
		}
		r.Logs = append(r.Logs, log)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}

	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	if !s.AtListEnd() {
		return nil, rlp.ErrTrailingBytes
	}
	return r, nil
}
