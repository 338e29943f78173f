package state

import (
	"testing"

	"proposalpay/native/proposal"
)

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	m := newTestManager(t)

	m.Begin()
	seedProposal(t, m, addr(0x01), addr(0x02), proposal.StatusPending)
	m.Rollback()

	if _, ok, err := m.ProposalGet(1); err != nil || ok {
		t.Fatalf("record survived rollback: ok=%v err=%v", ok, err)
	}
	counters, err := m.Counters()
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters.Total != 0 {
		t.Fatalf("allocator survived rollback: total=%d", counters.Total)
	}
	results, err := m.ProposalList(ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("index entries survived rollback: %d", len(results))
	}
}

func TestTransactionCommitAppliesWrites(t *testing.T) {
	m := newTestManager(t)

	m.Begin()
	first := seedProposal(t, m, addr(0x01), addr(0x02), proposal.StatusPending)
	// The allocator read inside the transaction must observe the staged
	// increment, so the second id advances.
	second := seedProposal(t, m, addr(0x01), addr(0x02), proposal.StatusPending)
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("staged allocator ids: %d, %d", first.ID, second.ID)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	for _, id := range []uint64{1, 2} {
		if _, ok, err := m.ProposalGet(id); err != nil || !ok {
			t.Fatalf("proposal %d after commit: ok=%v err=%v", id, ok, err)
		}
	}
	counters, err := m.Counters()
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters.Total != 2 {
		t.Fatalf("expected total 2, got %d", counters.Total)
	}
}

func TestTransactionStagedDeleteHidesRecord(t *testing.T) {
	m := newTestManager(t)
	p := seedProposal(t, m, addr(0x01), addr(0x02), proposal.StatusPending)

	m.Begin()
	if err := m.ProposalDelete(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := m.ProposalGet(p.ID); err != nil || ok {
		t.Fatalf("staged delete not observed: ok=%v err=%v", ok, err)
	}
	m.Rollback()

	if _, ok, err := m.ProposalGet(p.ID); err != nil || !ok {
		t.Fatalf("record lost after rollback: ok=%v err=%v", ok, err)
	}
}
