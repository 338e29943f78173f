package proposal

// ValidateFeesPaid checks that the attached funds cover the creation fee and
// the required gift exactly, and returns the aggregated total the request must
// not exceed. The gift list is expected to be aggregated already.
//
// Three mutually exclusive cases apply, keyed on whether the fee denomination
// overlaps the gift denominations:
//
//  1. The gift has exactly one denomination and it matches the fee: the
//     attached amount in that denomination must equal fee + gift.
//  2. The gift has multiple denominations, one matching the fee: the attached
//     fee-denomination amount must cover the fee, the excess must equal the
//     gift requirement for that denomination, and every other gift
//     denomination must be attached exactly.
//  3. No gift denomination matches the fee (including an empty gift): the fee
//     and each gift denomination must each be attached exactly.
func ValidateFeesPaid(fee Coin, gift []Coin, funds []Coin) ([]Coin, error) {
	if err := validateCoin(fee); err != nil {
		return nil, err
	}

	feeIdx := findDenom(gift, fee.Denom)
	switch {
	case feeIdx >= 0 && len(gift) == 1:
		expected, err := checkedAdd(fee.Amount, gift[feeIdx].Amount)
		if err != nil {
			return nil, err
		}
		paid, err := sumByDenom(funds, fee.Denom)
		if err != nil {
			return nil, err
		}
		if paid.Cmp(expected) != 0 {
			return nil, &InvalidCreationFeeError{Amount: paid, Expected: expected}
		}

	case feeIdx >= 0:
		paid, err := sumByDenom(funds, fee.Denom)
		if err != nil {
			return nil, err
		}
		if paid.Cmp(fee.Amount) < 0 {
			return nil, &InvalidCreationFeeError{Amount: paid, Expected: fee.Amount}
		}
		excess, err := checkedSub(paid, fee.Amount)
		if err != nil {
			return nil, err
		}
		switch excess.Cmp(gift[feeIdx].Amount) {
		case -1:
			return nil, ErrGiftFeeNotPaid
		case 1:
			return nil, ErrExtraFundsSent
		}
		for i, g := range gift {
			if i == feeIdx {
				continue
			}
			paid, err := sumByDenom(funds, g.Denom)
			if err != nil {
				return nil, err
			}
			if paid.Cmp(g.Amount) != 0 {
				return nil, ErrGiftFeeNotPaid
			}
		}

	default:
		paid, err := sumByDenom(funds, fee.Denom)
		if err != nil {
			return nil, err
		}
		if paid.Cmp(fee.Amount) != 0 {
			return nil, &InvalidCreationFeeError{Amount: paid, Expected: fee.Amount}
		}
		for _, g := range gift {
			paid, err := sumByDenom(funds, g.Denom)
			if err != nil {
				return nil, err
			}
			if paid.Cmp(g.Amount) != 0 {
				return nil, ErrGiftFeeNotPaid
			}
		}
	}

	return AggregateCoins(append([]Coin{fee}, gift...))
}

// EnsureNoExtraFunds rejects any attached denomination that is not part of the
// required total.
func EnsureNoExtraFunds(funds []Coin, totalRequired []Coin) error {
	for _, fund := range funds {
		if findDenom(totalRequired, fund.Denom) < 0 {
			return ErrExtraFundsSent
		}
	}
	return nil
}
