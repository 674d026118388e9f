package core

import (
	"bytes"
	"math/big"

	"github.com/mana-ethereum/mana/core/state"
	"github.com/mana-ethereum/mana/core/types"
)

// DAOForkBlockExtra is the extra-data marker a DAO-supporting chain requires
// for a window of blocks starting at the fork.
var DAOForkBlockExtra = []byte("dao-hard-fork")

// DAOForkExtraRange is the number of consecutive blocks, starting at the
// fork block, whose extra-data must carry the marker.
const DAOForkExtraRange = 10

// ValidateDAOHeaderExtraData rejects headers inside the fork's extra-data
// window whose marker disagrees with the chain's DAO stance.
func ValidateDAOHeaderExtraData(config *ChainConfig, header *types.Header) error {
	if config.DAOForkBlock == nil {
		return nil
	}
	limit := new(big.Int).Add(config.DAOForkBlock, big.NewInt(DAOForkExtraRange))
	if header.Number.Cmp(config.DAOForkBlock) < 0 || header.Number.Cmp(limit) >= 0 {
		return nil
	}
	if config.DAOForkSupport {
		if !bytes.Equal(header.Extra, DAOForkBlockExtra) {
			return ErrInvalidExtraData
		}
	} else if bytes.Equal(header.Extra, DAOForkBlockExtra) {
		return ErrInvalidExtraData
	}
	return nil
}

// ApplyDAOHardFork moves the full balance of every compromised account into
// the refund contract. It runs once, at the fork block, before any
// transaction executes.
func ApplyDAOHardFork(config *ChainConfig, staging *state.StagingDB) error {
	// Make sure the refund contract exists even if the drain list is empty.
	if err := staging.AddWei(config.DAORefundContract, new(big.Int)); err != nil {
		return err
	}
	for _, addr := range config.DAODrainList {
		amount, err := staging.ClearBalance(addr)
		if err != nil {
			return err
		}
		if err := staging.AddWei(config.DAORefundContract, amount); err != nil {
			return err
		}
	}
	return nil
}
