package proposal

import (
	"math/big"
	"sort"
)

// maxAmount bounds every coin amount to 128 bits, matching the host ledger's
// amount type.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(maxAmount) > 0 {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return nil, ErrArithmeticUnderflow
	}
	return diff, nil
}

// AggregateCoins combines a coin list into a canonical form: amounts summed
// per denomination with checked addition, sorted ascending by denomination,
// each denomination appearing at most once. Entries whose net amount is zero
// are retained; presence of a denomination is meaningful on its own. The
// function is pure and idempotent.
func AggregateCoins(coins []Coin) ([]Coin, error) {
	sums := make(map[string]*big.Int)
	order := make([]string, 0, len(coins))
	for _, coin := range coins {
		if err := validateCoin(coin); err != nil {
			return nil, err
		}
		if existing, ok := sums[coin.Denom]; ok {
			total, err := checkedAdd(existing, coin.Amount)
			if err != nil {
				return nil, err
			}
			sums[coin.Denom] = total
			continue
		}
		sums[coin.Denom] = new(big.Int).Set(coin.Amount)
		order = append(order, coin.Denom)
	}

	sort.Strings(order)
	aggregated := make([]Coin, len(order))
	for i, denom := range order {
		aggregated[i] = Coin{Denom: denom, Amount: sums[denom]}
	}
	return aggregated, nil
}

// findDenom returns the index of denom within coins, or -1.
func findDenom(coins []Coin, denom string) int {
	for i, coin := range coins {
		if coin.Denom == denom {
			return i
		}
	}
	return -1
}

// sumByDenom adds up every attached amount of the given denomination with
// checked addition. Absent denominations sum to zero.
func sumByDenom(coins []Coin, denom string) (*big.Int, error) {
	total := big.NewInt(0)
	for _, coin := range coins {
		if coin.Denom != denom {
			continue
		}
		if err := validateCoin(coin); err != nil {
			return nil, err
		}
		var err error
		total, err = checkedAdd(total, coin.Amount)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}
