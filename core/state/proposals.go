package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"proposalpay/native/proposal"
)

const (
	// DefaultListLimit caps list queries that do not request a page size.
	DefaultListLimit = 10
	// MaxListLimit is the hard ceiling for a single list query.
	MaxListLimit = 100
)

type storedCoin struct {
	Denom  string
	Amount *big.Int
}

func newStoredCoin(c proposal.Coin) storedCoin {
	amount := big.NewInt(0)
	if c.Amount != nil {
		amount = new(big.Int).Set(c.Amount)
	}
	return storedCoin{Denom: c.Denom, Amount: amount}
}

func (s storedCoin) toCoin() proposal.Coin {
	amount := big.NewInt(0)
	if s.Amount != nil {
		amount = new(big.Int).Set(s.Amount)
	}
	return proposal.Coin{Denom: s.Denom, Amount: amount}
}

type storedProposal struct {
	ID        uint64
	Proposer  [20]byte
	Receiver  [20]byte
	Fee       storedCoin
	Gift      []storedCoin
	Title     string
	Speech    string
	Reply     string
	Status    uint8
	CreatedAt uint64
	RepliedAt uint64
}

func newStoredProposal(p *proposal.Proposal) *storedProposal {
	if p == nil {
		return nil
	}
	gift := make([]storedCoin, len(p.Gift))
	for i, c := range p.Gift {
		gift[i] = newStoredCoin(c)
	}
	return &storedProposal{
		ID:        p.ID,
		Proposer:  p.Proposer,
		Receiver:  p.Receiver,
		Fee:       newStoredCoin(p.Fee),
		Gift:      gift,
		Title:     p.Title,
		Speech:    p.Speech,
		Reply:     p.Reply,
		Status:    uint8(p.Status),
		CreatedAt: p.CreatedAt,
		RepliedAt: p.RepliedAt,
	}
}

func (s *storedProposal) toProposal() (*proposal.Proposal, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil proposal record")
	}
	status := proposal.Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("state: proposal %d has invalid status %d", s.ID, s.Status)
	}
	out := &proposal.Proposal{
		ID:        s.ID,
		Proposer:  s.Proposer,
		Receiver:  s.Receiver,
		Fee:       s.Fee.toCoin(),
		Gift:      make([]proposal.Coin, len(s.Gift)),
		Title:     s.Title,
		Speech:    s.Speech,
		Reply:     s.Reply,
		Status:    status,
		CreatedAt: s.CreatedAt,
		RepliedAt: s.RepliedAt,
	}
	for i, c := range s.Gift {
		out.Gift[i] = c.toCoin()
	}
	return out, nil
}

func idSuffix(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func proposalKey(id uint64) []byte {
	return append(append([]byte(nil), proposalRecordPrefix...), idSuffix(id)...)
}

func participantIdxKey(prefix []byte, addr [20]byte, id uint64) []byte {
	buf := make([]byte, 0, len(prefix)+len(addr)+8)
	buf = append(buf, prefix...)
	buf = append(buf, addr[:]...)
	return append(buf, idSuffix(id)...)
}

func statusIdxKey(prefix []byte, addr [20]byte, status proposal.Status, id uint64) []byte {
	buf := make([]byte, 0, len(prefix)+len(addr)+1+8)
	buf = append(buf, prefix...)
	buf = append(buf, addr[:]...)
	buf = append(buf, byte(status))
	return append(buf, idSuffix(id)...)
}

func counterKey(kind proposal.CounterKind) []byte {
	return []byte(fmt.Sprintf(proposalCounterKeyFormat, kind))
}

// ProposalNextID allocates the next sequential proposal identifier. Ids start
// at one, so the allocator doubles as the lifetime creation count.
func (m *Manager) ProposalNextID() (uint64, error) {
	next, ok, err := m.readUint64(proposalNextIDKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		next = 1
	}
	if next == math.MaxUint64 {
		return 0, proposal.ErrArithmeticOverflow
	}
	if err := m.writeUint64(proposalNextIDKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// ProposalPut writes a proposal record and keeps all four participant indexes
// in step with it. Status index entries for a previous status are removed.
func (m *Manager) ProposalPut(p *proposal.Proposal) error {
	if p == nil {
		return fmt.Errorf("state: nil proposal")
	}
	prev, exists, err := m.ProposalGet(p.ID)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredProposal(p))
	if err != nil {
		return fmt.Errorf("state: encode proposal %d: %w", p.ID, err)
	}
	if err := m.KVPut(proposalKey(p.ID), encoded); err != nil {
		return err
	}
	if exists && prev.Status != p.Status {
		if err := m.KVDelete(statusIdxKey(proposalProposerStatusIdxPx, p.Proposer, prev.Status, p.ID)); err != nil {
			return err
		}
		if err := m.KVDelete(statusIdxKey(proposalReceiverStatusIdxPx, p.Receiver, prev.Status, p.ID)); err != nil {
			return err
		}
	}
	if err := m.KVPut(participantIdxKey(proposalProposerIdxPrefix, p.Proposer, p.ID), nil); err != nil {
		return err
	}
	if err := m.KVPut(participantIdxKey(proposalReceiverIdxPrefix, p.Receiver, p.ID), nil); err != nil {
		return err
	}
	if err := m.KVPut(statusIdxKey(proposalProposerStatusIdxPx, p.Proposer, p.Status, p.ID), nil); err != nil {
		return err
	}
	return m.KVPut(statusIdxKey(proposalReceiverStatusIdxPx, p.Receiver, p.Status, p.ID), nil)
}

// ProposalGet loads a proposal by id.
func (m *Manager) ProposalGet(id uint64) (*proposal.Proposal, bool, error) {
	raw, ok, err := m.KVGet(proposalKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var stored storedProposal
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode proposal %d: %w", id, err)
	}
	p, err := stored.toProposal()
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// ProposalDelete removes a proposal record and its index entries.
func (m *Manager) ProposalDelete(id uint64) error {
	p, ok, err := m.ProposalGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := m.KVDelete(proposalKey(id)); err != nil {
		return err
	}
	if err := m.KVDelete(participantIdxKey(proposalProposerIdxPrefix, p.Proposer, id)); err != nil {
		return err
	}
	if err := m.KVDelete(participantIdxKey(proposalReceiverIdxPrefix, p.Receiver, id)); err != nil {
		return err
	}
	if err := m.KVDelete(statusIdxKey(proposalProposerStatusIdxPx, p.Proposer, p.Status, id)); err != nil {
		return err
	}
	return m.KVDelete(statusIdxKey(proposalReceiverStatusIdxPx, p.Receiver, p.Status, id))
}

type storedConfig struct {
	SuccessfulProposalFee storedCoin
}

// ProposalConfig loads the module configuration.
func (m *Manager) ProposalConfig() (*proposal.Config, bool, error) {
	raw, ok, err := m.KVGet(proposalConfigKey)
	if err != nil || !ok {
		return nil, false, err
	}
	var stored storedConfig
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode config: %w", err)
	}
	return &proposal.Config{SuccessfulProposalFee: stored.SuccessfulProposalFee.toCoin()}, true, nil
}

// ProposalSetConfig stores the module configuration.
func (m *Manager) ProposalSetConfig(cfg *proposal.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil config")
	}
	encoded, err := rlp.EncodeToBytes(&storedConfig{SuccessfulProposalFee: newStoredCoin(cfg.SuccessfulProposalFee)})
	if err != nil {
		return fmt.Errorf("state: encode config: %w", err)
	}
	return m.KVPut(proposalConfigKey, encoded)
}

// ProposalOwner returns the module owner, if one is set.
func (m *Manager) ProposalOwner() ([20]byte, bool, error) {
	raw, ok, err := m.KVGet(proposalOwnerKey)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	if len(raw) != 20 {
		return [20]byte{}, false, errors.New("state: malformed owner record")
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, true, nil
}

// ProposalSetOwner stores the module owner.
func (m *Manager) ProposalSetOwner(addr [20]byte) error {
	return m.KVPut(proposalOwnerKey, addr[:])
}

// ProposalClearOwner removes the owner record, renouncing ownership.
func (m *Manager) ProposalClearOwner() error {
	return m.KVDelete(proposalOwnerKey)
}

// CounterIncrement bumps one terminal-transition tally and returns the new
// value.
func (m *Manager) CounterIncrement(kind proposal.CounterKind) (uint64, error) {
	key := counterKey(kind)
	current, _, err := m.readUint64(key)
	if err != nil {
		return 0, err
	}
	if current == math.MaxUint64 {
		return 0, proposal.ErrArithmeticOverflow
	}
	current++
	if err := m.writeUint64(key, current); err != nil {
		return 0, err
	}
	return current, nil
}

// Counters reads all lifecycle tallies. The total is derived from the id
// allocator, so it reflects every proposal ever created, including ones that
// were cancelled and removed.
func (m *Manager) Counters() (proposal.Counters, error) {
	var counters proposal.Counters
	next, ok, err := m.readUint64(proposalNextIDKey)
	if err != nil {
		return proposal.Counters{}, err
	}
	if ok {
		counters.Total = next - 1
	}
	if counters.Accepted, _, err = m.readUint64(counterKey(proposal.CounterAccepted)); err != nil {
		return proposal.Counters{}, err
	}
	if counters.Declined, _, err = m.readUint64(counterKey(proposal.CounterDeclined)); err != nil {
		return proposal.Counters{}, err
	}
	if counters.Cancelled, _, err = m.readUint64(counterKey(proposal.CounterCancelled)); err != nil {
		return proposal.Counters{}, err
	}
	return counters, nil
}

// ListQuery selects proposals by participant and status. A nil field means
// "any". Limit zero falls back to DefaultListLimit; values above MaxListLimit
// are clamped. Descending picks from the high end of the id range; results
// are always returned in ascending id order regardless.
type ListQuery struct {
	Proposer   *[20]byte
	Receiver   *[20]byte
	Status     *proposal.Status
	Limit      uint32
	Descending bool
}

func (q ListQuery) limit() int {
	switch {
	case q.Limit == 0:
		return DefaultListLimit
	case q.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return int(q.Limit)
	}
}

// ProposalList runs a list query against the participant indexes, falling
// back to a full record scan when no participant filter is given.
func (m *Manager) ProposalList(q ListQuery) ([]*proposal.Proposal, error) {
	if m == nil || m.db == nil {
		return nil, errNilDatabase
	}
	limit := q.limit()

	var (
		results []*proposal.Proposal
		err     error
	)
	switch {
	case q.Proposer != nil:
		results, err = m.listByIndex(indexPrefix(proposalProposerIdxPrefix, proposalProposerStatusIdxPx, *q.Proposer, q.Status), q, limit)
	case q.Receiver != nil:
		results, err = m.listByIndex(indexPrefix(proposalReceiverIdxPrefix, proposalReceiverStatusIdxPx, *q.Receiver, q.Status), q, limit)
	default:
		results, err = m.listByScan(q, limit)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool {
		if q.Descending {
			return results[i].ID > results[j].ID
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func indexPrefix(plain, byStatus []byte, addr [20]byte, status *proposal.Status) []byte {
	if status == nil {
		buf := make([]byte, 0, len(plain)+len(addr))
		buf = append(buf, plain...)
		return append(buf, addr[:]...)
	}
	buf := make([]byte, 0, len(byStatus)+len(addr)+1)
	buf = append(buf, byStatus...)
	buf = append(buf, addr[:]...)
	return append(buf, byte(*status))
}

func (m *Manager) listByIndex(prefix []byte, q ListQuery, limit int) ([]*proposal.Proposal, error) {
	it := m.db.NewIterator(prefix, q.Descending)
	defer it.Release()

	results := make([]*proposal.Proposal, 0, limit)
	for it.Next() {
		key := it.Key()
		if len(key) < 8 {
			return nil, fmt.Errorf("state: malformed index key %x", key)
		}
		id := binary.BigEndian.Uint64(key[len(key)-8:])
		p, ok, err := m.ProposalGet(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: index entry for missing proposal %d", id)
		}
		if !matchesQuery(p, q) {
			continue
		}
		results = append(results, p)
		if len(results) >= limit {
			break
		}
	}
	return results, it.Error()
}

func (m *Manager) listByScan(q ListQuery, limit int) ([]*proposal.Proposal, error) {
	it := m.db.NewIterator(proposalRecordPrefix, q.Descending)
	defer it.Release()

	results := make([]*proposal.Proposal, 0, limit)
	for it.Next() {
		var stored storedProposal
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			return nil, fmt.Errorf("state: decode proposal record: %w", err)
		}
		p, err := stored.toProposal()
		if err != nil {
			return nil, err
		}
		if !matchesQuery(p, q) {
			continue
		}
		results = append(results, p)
		if len(results) >= limit {
			break
		}
	}
	return results, it.Error()
}

func matchesQuery(p *proposal.Proposal, q ListQuery) bool {
	if q.Proposer != nil && p.Proposer != *q.Proposer {
		return false
	}
	if q.Receiver != nil && p.Receiver != *q.Receiver {
		return false
	}
	if q.Status != nil && p.Status != *q.Status {
		return false
	}
	return true
}
