package core

import (
	"math/big"

	"github.com/mana-ethereum/mana/core/types"
)

// Difficulty calculation constants shared by every era.
var (
	expDiffPeriod = big.NewInt(100_000)
	big1          = big.NewInt(1)
	big2          = big.NewInt(2)
	big9          = big.NewInt(9)
	big10         = big.NewInt(10)
	bigMinus99    = big.NewInt(-99)

	byzantiumBombDelay      = big.NewInt(3_000_000)
	constantinopleBombDelay = big.NewInt(5_000_000)
)

// CalcDifficulty computes the difficulty a block sealed at the given time on
// top of parent must carry. The formula is selected by hardfork: Frontier,
// Homestead (EIP-2), or Byzantium/Constantinople (EIP-100 uncle adjustment
// plus EIP-649/EIP-1234 bomb delays).
func CalcDifficulty(config *ChainConfig, time uint64, parent *types.Header) *big.Int {
	next := new(big.Int).Add(parent.Number, big1)
	switch {
	case config.IsConstantinople(next):
		return calcDifficultyBomb(config, time, parent, constantinopleBombDelay)
	case config.IsByzantium(next):
		return calcDifficultyBomb(config, time, parent, byzantiumBombDelay)
	case config.IsHomestead(next):
		return calcDifficultyHomestead(config, time, parent)
	default:
		return calcDifficultyFrontier(config, time, parent)
	}
}

// calcDifficultyFrontier adjusts the parent difficulty up or down by
// parent_diff / divisor depending on whether the block arrived within the
// duration limit, then applies the difficulty bomb.
func calcDifficultyFrontier(config *ChainConfig, time uint64, parent *types.Header) *big.Int {
	diff := new(big.Int)
	adjust := new(big.Int).Div(parent.Difficulty, config.DifficultyBoundDivisor)

	bigTime := new(big.Int).SetUint64(time)
	bigParentTime := new(big.Int).SetUint64(parent.Time)

	if bigTime.Sub(bigTime, bigParentTime).Cmp(config.DurationLimit) < 0 {
		diff.Add(parent.Difficulty, adjust)
	} else {
		diff.Sub(parent.Difficulty, adjust)
	}
	if diff.Cmp(config.MinimumDifficulty) < 0 {
		diff.Set(config.MinimumDifficulty)
	}

	addBomb(diff, new(big.Int).Add(parent.Number, big1))
	return diff
}

// calcDifficultyHomestead scales the adjustment continuously with the block
// time delta per EIP-2:
//
//	diff = parent_diff + parent_diff/2048 * max(1 - (time - parent_time)/10, -99)
func calcDifficultyHomestead(config *ChainConfig, time uint64, parent *types.Header) *big.Int {
	bigTime := new(big.Int).SetUint64(time)
	bigParentTime := new(big.Int).SetUint64(parent.Time)

	x := new(big.Int).Sub(bigTime, bigParentTime)
	x.Div(x, big10)
	x.Sub(big1, x)
	if x.Cmp(bigMinus99) < 0 {
		x.Set(bigMinus99)
	}

	y := new(big.Int).Div(parent.Difficulty, config.DifficultyBoundDivisor)
	x.Mul(y, x)
	diff := new(big.Int).Add(parent.Difficulty, x)

	if diff.Cmp(config.MinimumDifficulty) < 0 {
		diff.Set(config.MinimumDifficulty)
	}

	addBomb(diff, new(big.Int).Add(parent.Number, big1))
	return diff
}

// calcDifficultyBomb is the Byzantium-era formula: the adjustment counts
// parent ommers per EIP-100 and the bomb runs against a block number pushed
// back by bombDelay:
//
//	diff = parent_diff + parent_diff/2048 * max((2 if ommers else 1) - (time - parent_time)/9, -99)
func calcDifficultyBomb(config *ChainConfig, time uint64, parent *types.Header, bombDelay *big.Int) *big.Int {
	bigTime := new(big.Int).SetUint64(time)
	bigParentTime := new(big.Int).SetUint64(parent.Time)

	x := new(big.Int).Sub(bigTime, bigParentTime)
	x.Div(x, big9)
	if parent.UncleHash == types.EmptyUncleHash {
		x.Sub(big1, x)
	} else {
		x.Sub(big2, x)
	}
	if x.Cmp(bigMinus99) < 0 {
		x.Set(bigMinus99)
	}

	y := new(big.Int).Div(parent.Difficulty, config.DifficultyBoundDivisor)
	x.Mul(y, x)
	diff := new(big.Int).Add(parent.Difficulty, x)

	if diff.Cmp(config.MinimumDifficulty) < 0 {
		diff.Set(config.MinimumDifficulty)
	}

	// The bomb runs against a number pushed back by the delay, never below
	// the genesis epoch. delayedParent folds the parent+1 into the delay.
	delayedParent := new(big.Int).Sub(bombDelay, big1)
	fakeBlockNumber := new(big.Int)
	if parent.Number.Cmp(delayedParent) >= 0 {
		fakeBlockNumber.Sub(parent.Number, delayedParent)
	}
	addBomb(diff, fakeBlockNumber)
	return diff
}

// addBomb adds the exponential difficulty bomb for the given effective block
// number: 2^(number/100000 - 2) once number/100000 exceeds 1.
func addBomb(diff *big.Int, number *big.Int) {
	periodCount := new(big.Int).Div(number, expDiffPeriod)
	if periodCount.Cmp(big1) > 0 {
		bomb := new(big.Int).Sub(periodCount, big2)
		bomb.Exp(big2, bomb, nil)
		diff.Add(diff, bomb)
	}
}
