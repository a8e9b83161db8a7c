package orchestrator

import "github.com/moonapp-tools/mooncoin-cli/internal/mooncoin"

// DefaultCatalog is the fixed set of reward tuples a spin may submit. The
// server decides what is actually awarded.
func DefaultCatalog() []mooncoin.Reward {
	return []mooncoin.Reward{
		{Amount: 1000, Key: "s1", Type: mooncoin.PrizePoint},
		{Amount: 500, Key: "s2", Type: mooncoin.PrizePoint},
		{Amount: 2000, Key: "s3", Type: mooncoin.PrizePoint},
		{Amount: 5000, Key: "s4", Type: mooncoin.PrizePoint},
		{Amount: 1, Key: "s5", Type: mooncoin.PrizeSpin},
	}
}
