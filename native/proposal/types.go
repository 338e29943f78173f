package proposal

import (
	"fmt"
	"math/big"
	"strings"
)

// Status represents the stored lifecycle states of a proposal. A cancelled
// proposal is removed from state rather than marked, so no stored status value
// exists for cancellation.
type Status uint8

const (
	StatusPending Status = iota
	StatusAccepted
	StatusDeclined
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusDeclined:
		return "declined"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus maps the canonical lowercase status names back to their values.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "accepted":
		return StatusAccepted, nil
	case "declined":
		return StatusDeclined, nil
	default:
		return StatusPending, fmt.Errorf("proposal: invalid status %q", raw)
	}
}

// Coin is a single (denomination, amount) pair. Amounts are non-negative and
// bounded to 128 bits; all arithmetic on them is overflow-checked.
type Coin struct {
	Denom  string
	Amount *big.Int
}

func (c Coin) String() string {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	return amount + c.Denom
}

// Clone returns a deep copy of the coin.
func (c Coin) Clone() Coin {
	clone := Coin{Denom: c.Denom, Amount: big.NewInt(0)}
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	}
	return clone
}

// CloneCoins deep-copies a coin list.
func CloneCoins(coins []Coin) []Coin {
	if coins == nil {
		return nil
	}
	out := make([]Coin, len(coins))
	for i, c := range coins {
		out[i] = c.Clone()
	}
	return out
}

// CoinsString renders a coin list as a comma-joined string for event
// attributes and logs.
func CoinsString(coins []Coin) string {
	parts := make([]string, len(coins))
	for i, c := range coins {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Proposal captures a single conditional-payment agreement between a proposer
// and a receiver. The fee and gift are fixed at creation time; only status,
// reply, and the reply height change afterwards.
type Proposal struct {
	ID        uint64
	Proposer  [20]byte
	Receiver  [20]byte
	Fee       Coin
	Gift      []Coin
	Title     string
	Speech    string
	Reply     string
	Status    Status
	CreatedAt uint64
	// RepliedAt is set exactly once, on the first terminal transition, and
	// stays zero while the proposal is pending.
	RepliedAt uint64
}

// Clone returns a deep copy of the proposal so callers can safely mutate the
// copy without affecting the stored instance.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Fee = p.Fee.Clone()
	clone.Gift = CloneCoins(p.Gift)
	return &clone
}

// SanitizeProposal validates and normalises the supplied proposal, returning a
// cloned instance with non-nil amounts. The function does not mutate the
// original value.
func SanitizeProposal(p *Proposal) (*Proposal, error) {
	if p == nil {
		return nil, fmt.Errorf("proposal: nil proposal")
	}
	clone := p.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("proposal: invalid status: %d", clone.Status)
	}
	if err := validateCoin(clone.Fee); err != nil {
		return nil, fmt.Errorf("proposal: invalid fee: %w", err)
	}
	for _, c := range clone.Gift {
		if err := validateCoin(c); err != nil {
			return nil, fmt.Errorf("proposal: invalid gift entry: %w", err)
		}
	}
	if clone.Proposer == clone.Receiver {
		return nil, ErrInvalidReceiver
	}
	return clone, nil
}

func validateCoin(c Coin) error {
	if strings.TrimSpace(c.Denom) == "" {
		return fmt.Errorf("empty denomination")
	}
	if c.Amount == nil {
		return fmt.Errorf("nil amount for %s", c.Denom)
	}
	if c.Amount.Sign() < 0 {
		return fmt.Errorf("negative amount for %s", c.Denom)
	}
	if c.Amount.Cmp(maxAmount) > 0 {
		return ErrArithmeticOverflow
	}
	return nil
}

// Config holds the process-wide proposal settings.
type Config struct {
	// SuccessfulProposalFee is charged on every proposal creation and paid to
	// the owner when the receiver accepts.
	SuccessfulProposalFee Coin
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	return &Config{SuccessfulProposalFee: c.SuccessfulProposalFee.Clone()}
}

// Transfer is a declarative funds-movement instruction emitted by lifecycle
// transitions. The engine never touches balances itself; the host ledger
// executes these atomically with the state change.
type Transfer struct {
	To     [20]byte
	Amount []Coin
}

// CounterKind names the terminal-transition tallies maintained alongside the
// proposal store. Total creations are tracked by the id allocator.
type CounterKind uint8

const (
	CounterAccepted CounterKind = iota
	CounterDeclined
	CounterCancelled
)

func (k CounterKind) String() string {
	switch k {
	case CounterAccepted:
		return "accepted"
	case CounterDeclined:
		return "declined"
	case CounterCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("counter(%d)", uint8(k))
	}
}

// Counters is a snapshot of the aggregate tallies.
type Counters struct {
	Total     uint64
	Accepted  uint64
	Declined  uint64
	Cancelled uint64
}

// Pending derives the number of proposals currently awaiting a response. The
// value is computed on read and never stored.
func (c Counters) Pending() uint64 {
	return c.Total - c.Accepted - c.Declined - c.Cancelled
}
