package state

import (
	"math/big"
	"testing"

	"proposalpay/native/proposal"
	"proposalpay/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func testCoin(amount int64, denom string) proposal.Coin {
	return proposal.Coin{Denom: denom, Amount: big.NewInt(amount)}
}

func seedProposal(t *testing.T, m *Manager, proposer, receiver [20]byte, status proposal.Status) *proposal.Proposal {
	t.Helper()
	id, err := m.ProposalNextID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	p := &proposal.Proposal{
		ID:        id,
		Proposer:  proposer,
		Receiver:  receiver,
		Fee:       testCoin(100, "uom"),
		Gift:      []proposal.Coin{testCoin(50, "uom")},
		Title:     "title",
		Speech:    "speech",
		Status:    status,
		CreatedAt: 7,
	}
	if err := m.ProposalPut(p); err != nil {
		t.Fatalf("put: %v", err)
	}
	return p
}

func TestProposalRoundTrip(t *testing.T) {
	m := newTestManager(t)
	want := seedProposal(t, m, addr(0x01), addr(0x02), proposal.StatusPending)

	got, ok, err := m.ProposalGet(want.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("proposal missing")
	}
	if got.ID != want.ID || got.Proposer != want.Proposer || got.Receiver != want.Receiver {
		t.Fatalf("identity fields mismatch: %+v", got)
	}
	if got.Fee.Amount.Cmp(want.Fee.Amount) != 0 || got.Fee.Denom != want.Fee.Denom {
		t.Fatalf("fee mismatch: %s", got.Fee)
	}
	if len(got.Gift) != 1 || got.Gift[0].Amount.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("gift mismatch: %+v", got.Gift)
	}
	if got.Title != "title" || got.Speech != "speech" || got.CreatedAt != 7 {
		t.Fatalf("detail fields mismatch: %+v", got)
	}
}

func TestProposalNextIDSequence(t *testing.T) {
	m := newTestManager(t)
	for want := uint64(1); want <= 3; want++ {
		id, err := m.ProposalNextID()
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if id != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}
	counters, err := m.Counters()
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters.Total != 3 {
		t.Fatalf("expected total 3, got %d", counters.Total)
	}
}

func TestProposalDeleteRemovesIndexEntries(t *testing.T) {
	m := newTestManager(t)
	proposer := addr(0x01)
	p := seedProposal(t, m, proposer, addr(0x02), proposal.StatusPending)

	if err := m.ProposalDelete(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := m.ProposalGet(p.ID); ok {
		t.Fatalf("record still present")
	}
	results, err := m.ProposalList(ListQuery{Proposer: &proposer})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("stale index entries: %d results", len(results))
	}
	if err := m.ProposalDelete(p.ID); err != nil {
		t.Fatalf("deleting absent proposal should be a no-op: %v", err)
	}
}

func TestStatusIndexFollowsTransitions(t *testing.T) {
	m := newTestManager(t)
	proposer := addr(0x01)
	receiver := addr(0x02)
	p := seedProposal(t, m, proposer, receiver, proposal.StatusPending)

	pending := proposal.StatusPending
	accepted := proposal.StatusAccepted

	results, err := m.ProposalList(ListQuery{Receiver: &receiver, Status: &pending})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected pending entry, got %d", len(results))
	}

	p.Status = proposal.StatusAccepted
	if err := m.ProposalPut(p); err != nil {
		t.Fatalf("put accepted: %v", err)
	}

	results, err = m.ProposalList(ListQuery{Receiver: &receiver, Status: &pending})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("stale pending index entry")
	}
	results, err = m.ProposalList(ListQuery{Proposer: &proposer, Status: &accepted})
	if err != nil {
		t.Fatalf("list accepted: %v", err)
	}
	if len(results) != 1 || results[0].ID != p.ID {
		t.Fatalf("accepted index missing entry: %+v", results)
	}
}

func TestProposalListFiltersAndLimits(t *testing.T) {
	m := newTestManager(t)
	alice := addr(0x0A)
	bob := addr(0x0B)
	carol := addr(0x0C)

	for i := 0; i < 15; i++ {
		receiver := bob
		if i%3 == 0 {
			receiver = carol
		}
		seedProposal(t, m, alice, receiver, proposal.StatusPending)
	}
	seedProposal(t, m, bob, alice, proposal.StatusPending)

	results, err := m.ProposalList(ListQuery{Proposer: &alice})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != DefaultListLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultListLimit, len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].ID >= results[i].ID {
			t.Fatalf("results not in ascending id order")
		}
	}

	results, err = m.ProposalList(ListQuery{Proposer: &alice, Receiver: &carol, Limit: MaxListLimit})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 carol proposals, got %d", len(results))
	}
	for _, p := range results {
		if p.Receiver != carol {
			t.Fatalf("receiver filter leaked: %+v", p)
		}
	}

	results, err = m.ProposalList(ListQuery{Limit: MaxListLimit + 50})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 16 {
		t.Fatalf("full scan expected 16, got %d", len(results))
	}
}

func TestProposalListDescendingPicksHighIDs(t *testing.T) {
	m := newTestManager(t)
	alice := addr(0x0A)
	bob := addr(0x0B)
	for i := 0; i < 5; i++ {
		seedProposal(t, m, alice, bob, proposal.StatusPending)
	}

	results, err := m.ProposalList(ListQuery{Proposer: &alice, Limit: 2, Descending: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 5 || results[1].ID != 4 {
		t.Fatalf("descending query should yield ids 5,4, got %d,%d", results[0].ID, results[1].ID)
	}
}

func TestConfigAndOwnerRoundTrip(t *testing.T) {
	m := newTestManager(t)

	if _, ok, err := m.ProposalConfig(); err != nil || ok {
		t.Fatalf("expected no config, ok=%v err=%v", ok, err)
	}
	cfg := &proposal.Config{SuccessfulProposalFee: testCoin(100, "uom")}
	if err := m.ProposalSetConfig(cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}
	got, ok, err := m.ProposalConfig()
	if err != nil || !ok {
		t.Fatalf("config: ok=%v err=%v", ok, err)
	}
	if got.SuccessfulProposalFee.Denom != "uom" || got.SuccessfulProposalFee.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("config mismatch: %s", got.SuccessfulProposalFee)
	}

	if _, ok, err := m.ProposalOwner(); err != nil || ok {
		t.Fatalf("expected no owner, ok=%v err=%v", ok, err)
	}
	owner := addr(0xEE)
	if err := m.ProposalSetOwner(owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	gotOwner, ok, err := m.ProposalOwner()
	if err != nil || !ok || gotOwner != owner {
		t.Fatalf("owner mismatch: %v ok=%v err=%v", gotOwner, ok, err)
	}
	if err := m.ProposalClearOwner(); err != nil {
		t.Fatalf("clear owner: %v", err)
	}
	if _, ok, _ := m.ProposalOwner(); ok {
		t.Fatalf("owner should be cleared")
	}
}

func TestCounterIncrement(t *testing.T) {
	m := newTestManager(t)
	for want := uint64(1); want <= 3; want++ {
		got, err := m.CounterIncrement(proposal.CounterAccepted)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if _, err := m.CounterIncrement(proposal.CounterDeclined); err != nil {
		t.Fatalf("increment declined: %v", err)
	}
	counters, err := m.Counters()
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters.Accepted != 3 || counters.Declined != 1 || counters.Cancelled != 0 {
		t.Fatalf("unexpected counters: %+v", counters)
	}
}
