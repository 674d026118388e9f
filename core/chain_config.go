package core

import (
	"math/big"

	"github.com/mana-ethereum/mana/core/types"
	"github.com/mana-ethereum/mana/core/vm"
)

// RewardStep is one entry of the by-block base reward schedule: from Block
// on, a sealed block pays Reward wei to its beneficiary.
type RewardStep struct {
	Block  *big.Int
	Reward *big.Int
}

// ChainConfig parameterizes consensus by block number: hardfork transitions,
// difficulty constants, gas limit bounds, DAO recovery data, and the base
// reward schedule. The in-memory shape is a plain record; parsing the JSON
// chain file into it happens outside this module.
type ChainConfig struct {
	NetworkID uint64
	ChainID   *big.Int

	// Hardfork transitions, nil means never.
	HomesteadBlock      *big.Int
	EIP150Block         *big.Int // Tangerine Whistle
	EIP155Block         *big.Int
	EIP158Block         *big.Int // Spurious Dragon (EIP-160/161)
	ByzantiumBlock      *big.Int // EIP-140/198/211/214/658
	ConstantinopleBlock *big.Int // EIP-145/1014/1052/1283
	PetersburgBlock     *big.Int // disables EIP-1283

	// DAO recovery fork.
	DAOForkBlock      *big.Int
	DAOForkSupport    bool
	DAODrainList      []types.Address
	DAORefundContract types.Address

	// Difficulty formula constants.
	MinimumDifficulty      *big.Int
	DifficultyBoundDivisor *big.Int
	DurationLimit          *big.Int

	// Gas limit bounds.
	GasLimitBoundDivisor uint64
	MinGasLimit          uint64

	// EIP-170 deployed-code cap.
	MaxCodeSize uint64

	// Base block reward by block number, ascending. Empty means no rewards.
	RewardSchedule []RewardStep
}

// isBlockForked reports whether a fork scheduled at block s is active at num.
func isBlockForked(s, num *big.Int) bool {
	if s == nil || num == nil {
		return false
	}
	return s.Cmp(num) <= 0
}

// IsHomestead returns whether num is at or past the Homestead fork.
func (c *ChainConfig) IsHomestead(num *big.Int) bool {
	return isBlockForked(c.HomesteadBlock, num)
}

// IsDAOFork returns whether num is exactly the DAO recovery block.
func (c *ChainConfig) IsDAOFork(num *big.Int) bool {
	return c.DAOForkBlock != nil && num != nil && c.DAOForkBlock.Cmp(num) == 0
}

// IsEIP150 returns whether num is at or past the Tangerine Whistle fork.
func (c *ChainConfig) IsEIP150(num *big.Int) bool {
	return isBlockForked(c.EIP150Block, num)
}

// IsEIP155 returns whether num is at or past the EIP-155 replay fork.
func (c *ChainConfig) IsEIP155(num *big.Int) bool {
	return isBlockForked(c.EIP155Block, num)
}

// IsEIP158 returns whether num is at or past the Spurious Dragon fork.
func (c *ChainConfig) IsEIP158(num *big.Int) bool {
	return isBlockForked(c.EIP158Block, num)
}

// IsByzantium returns whether num is at or past the Byzantium fork.
func (c *ChainConfig) IsByzantium(num *big.Int) bool {
	return isBlockForked(c.ByzantiumBlock, num)
}

// IsConstantinople returns whether num is at or past the Constantinople fork.
func (c *ChainConfig) IsConstantinople(num *big.Int) bool {
	return isBlockForked(c.ConstantinopleBlock, num)
}

// IsPetersburg returns whether num is at or past the Petersburg fork.
func (c *ChainConfig) IsPetersburg(num *big.Int) bool {
	return isBlockForked(c.PetersburgBlock, num)
}

// EIP1283Enabled reports whether net-metered SSTORE is active: introduced by
// Constantinople and immediately disabled again by Petersburg.
func (c *ChainConfig) EIP1283Enabled(num *big.Int) bool {
	return c.IsConstantinople(num) && !c.IsPetersburg(num)
}

// BlockReward returns the base reward for sealing block num.
func (c *ChainConfig) BlockReward(num *big.Int) *big.Int {
	reward := new(big.Int)
	for _, step := range c.RewardSchedule {
		if isBlockForked(step.Block, num) {
			reward = step.Reward
		}
	}
	return new(big.Int).Set(reward)
}

// Rules resolves the fork switches in effect at block num.
func (c *ChainConfig) Rules(num *big.Int) vm.Rules {
	return vm.Rules{
		IsHomestead:      c.IsHomestead(num),
		IsEIP150:         c.IsEIP150(num),
		IsEIP155:         c.IsEIP155(num),
		IsSpuriousDragon: c.IsEIP158(num),
		IsByzantium:      c.IsByzantium(num),
		IsConstantinople: c.IsConstantinople(num),
		EIP1283Enabled:   c.EIP1283Enabled(num),
		MaxCodeSize:      c.MaxCodeSize,
	}
}

// Ether is the number of wei in one ether.
var Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Ether)
}

// classicRewardSchedule is the mainnet-era 5/3/2 ether schedule.
func classicRewardSchedule(byzantium, constantinople *big.Int) []RewardStep {
	steps := []RewardStep{{Block: big.NewInt(0), Reward: ether(5)}}
	if byzantium != nil {
		steps = append(steps, RewardStep{Block: byzantium, Reward: ether(3)})
	}
	if constantinople != nil {
		steps = append(steps, RewardStep{Block: constantinople, Reward: ether(2)})
	}
	return steps
}

// MainnetChainConfig is the consensus configuration of the Ethereum main
// network through Petersburg. The DAO drain list is supplied by the chain
// configuration file and left empty here.
var MainnetChainConfig = &ChainConfig{
	NetworkID:           1,
	ChainID:             big.NewInt(1),
	HomesteadBlock:      big.NewInt(1_150_000),
	DAOForkBlock:        big.NewInt(1_920_000),
	DAOForkSupport:      true,
	DAORefundContract:   types.HexToAddress("bf4ed7b27f1d666546e30d74d50d173d20bca754"),
	EIP150Block:         big.NewInt(2_463_000),
	EIP155Block:         big.NewInt(2_675_000),
	EIP158Block:         big.NewInt(2_675_000),
	ByzantiumBlock:      big.NewInt(4_370_000),
	ConstantinopleBlock: big.NewInt(7_280_000),
	PetersburgBlock:     big.NewInt(7_280_000),

	MinimumDifficulty:      big.NewInt(131_072),
	DifficultyBoundDivisor: big.NewInt(2048),
	DurationLimit:          big.NewInt(13),
	GasLimitBoundDivisor:   1024,
	MinGasLimit:            5000,
	MaxCodeSize:            24576,
	RewardSchedule:         classicRewardSchedule(big.NewInt(4_370_000), big.NewInt(7_280_000)),
}

// RopstenChainConfig is the consensus configuration of the Ropsten test
// network.
var RopstenChainConfig = &ChainConfig{
	NetworkID:           3,
	ChainID:             big.NewInt(3),
	HomesteadBlock:      big.NewInt(0),
	EIP150Block:         big.NewInt(0),
	EIP155Block:         big.NewInt(10),
	EIP158Block:         big.NewInt(10),
	ByzantiumBlock:      big.NewInt(1_700_000),
	ConstantinopleBlock: big.NewInt(4_230_000),
	PetersburgBlock:     big.NewInt(4_939_394),

	MinimumDifficulty:      big.NewInt(131_072),
	DifficultyBoundDivisor: big.NewInt(2048),
	DurationLimit:          big.NewInt(13),
	GasLimitBoundDivisor:   1024,
	MinGasLimit:            5000,
	MaxCodeSize:            24576,
	RewardSchedule:         classicRewardSchedule(big.NewInt(1_700_000), big.NewInt(4_230_000)),
}

// TestChainConfig has every fork active from genesis.
var TestChainConfig = &ChainConfig{
	NetworkID:           1337,
	ChainID:             big.NewInt(1337),
	HomesteadBlock:      big.NewInt(0),
	EIP150Block:         big.NewInt(0),
	EIP155Block:         big.NewInt(0),
	EIP158Block:         big.NewInt(0),
	ByzantiumBlock:      big.NewInt(0),
	ConstantinopleBlock: big.NewInt(0),
	PetersburgBlock:     big.NewInt(0),

	MinimumDifficulty:      big.NewInt(131_072),
	DifficultyBoundDivisor: big.NewInt(2048),
	DurationLimit:          big.NewInt(13),
	GasLimitBoundDivisor:   1024,
	MinGasLimit:            5000,
	MaxCodeSize:            24576,
	RewardSchedule:         classicRewardSchedule(big.NewInt(0), big.NewInt(0)),
}

// FrontierChainConfig has no forks scheduled, for exercising the original
// rule set.
var FrontierChainConfig = &ChainConfig{
	NetworkID: 1,
	ChainID:   big.NewInt(1),

	MinimumDifficulty:      big.NewInt(131_072),
	DifficultyBoundDivisor: big.NewInt(2048),
	DurationLimit:          big.NewInt(13),
	GasLimitBoundDivisor:   1024,
	MinGasLimit:            5000,
	MaxCodeSize:            24576,
	RewardSchedule:         []RewardStep{{Block: big.NewInt(0), Reward: ether(5)}},
}
