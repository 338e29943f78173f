package proposal

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"proposalpay/core/events"
)

type mockState struct {
	nextID    uint64
	proposals map[uint64]*Proposal
	config    *Config
	owner     *[20]byte
	counters  Counters
}

func newMockState(fee Coin) *mockState {
	return &mockState{
		proposals: make(map[uint64]*Proposal),
		config:    &Config{SuccessfulProposalFee: fee},
	}
}

func (m *mockState) ProposalNextID() (uint64, error) {
	m.nextID++
	m.counters.Total++
	return m.nextID, nil
}

func (m *mockState) ProposalPut(p *Proposal) error {
	m.proposals[p.ID] = p.Clone()
	return nil
}

func (m *mockState) ProposalGet(id uint64) (*Proposal, bool, error) {
	p, ok := m.proposals[id]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) ProposalDelete(id uint64) error {
	delete(m.proposals, id)
	return nil
}

func (m *mockState) ProposalConfig() (*Config, bool, error) {
	if m.config == nil {
		return nil, false, nil
	}
	return m.config.Clone(), true, nil
}

func (m *mockState) ProposalSetConfig(cfg *Config) error {
	m.config = cfg.Clone()
	return nil
}

func (m *mockState) ProposalOwner() ([20]byte, bool, error) {
	if m.owner == nil {
		return [20]byte{}, false, nil
	}
	return *m.owner, true, nil
}

func (m *mockState) ProposalSetOwner(addr [20]byte) error {
	owner := addr
	m.owner = &owner
	return nil
}

func (m *mockState) ProposalClearOwner() error {
	m.owner = nil
	return nil
}

func (m *mockState) CounterIncrement(kind CounterKind) (uint64, error) {
	switch kind {
	case CounterAccepted:
		m.counters.Accepted++
		return m.counters.Accepted, nil
	case CounterDeclined:
		m.counters.Declined++
		return m.counters.Declined, nil
	case CounterCancelled:
		m.counters.Cancelled++
		return m.counters.Cancelled, nil
	}
	return 0, errors.New("unknown counter")
}

func (m *mockState) Counters() (Counters, error) {
	return m.counters, nil
}

type recordingEmitter struct {
	events []*events.Payload
}

func (r *recordingEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *events.Payload })
	if !ok {
		return
	}
	r.events = append(r.events, carrier.Event())
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestEngine(t *testing.T, fee Coin) (*Engine, *mockState, *recordingEmitter) {
	t.Helper()
	state := newMockState(fee)
	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetHeightFunc(func() uint64 { return 42 })
	return engine, state, emitter
}

func checkCounterInvariant(t *testing.T, state *mockState) {
	t.Helper()
	counters, err := state.Counters()
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	pending := uint64(0)
	for _, p := range state.proposals {
		if p.Status == StatusPending {
			pending++
		}
	}
	if counters.Total != counters.Accepted+counters.Declined+counters.Cancelled+pending {
		t.Fatalf("counter invariant broken: %+v pending=%d", counters, pending)
	}
}

func TestCreateRejectsSelfProposal(t *testing.T) {
	engine, _, _ := newTestEngine(t, coin(100, "uom"))
	addr := newTestAddress(0x01)
	if _, err := engine.Create(addr, addr, "", "", nil, []Coin{coin(100, "uom")}); err != ErrInvalidReceiver {
		t.Fatalf("expected invalid receiver, got %v", err)
	}
}

func TestCreatePersistsPendingProposal(t *testing.T) {
	engine, state, emitter := newTestEngine(t, coin(100, "uom"))
	proposer := newTestAddress(0x01)
	receiver := newTestAddress(0x02)

	p, err := engine.Create(proposer, receiver, "marry me", "a speech", []Coin{coin(50, "uom")}, []Coin{coin(150, "uom")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID != 1 {
		t.Fatalf("unexpected id: %d", p.ID)
	}
	if p.Status != StatusPending {
		t.Fatalf("unexpected status: %s", p.Status)
	}
	if p.CreatedAt != 42 {
		t.Fatalf("unexpected createdAt: %d", p.CreatedAt)
	}
	if p.RepliedAt != 0 {
		t.Fatalf("repliedAt must be unset while pending")
	}
	if p.Fee.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected fee: %s", p.Fee)
	}

	stored, ok, err := state.ProposalGet(1)
	if err != nil || !ok {
		t.Fatalf("proposal not stored: %v", err)
	}
	if stored.Title != "marry me" || stored.Speech != "a speech" {
		t.Fatalf("text fields lost: %q %q", stored.Title, stored.Speech)
	}
	if len(emitter.events) != 1 || emitter.events[0].Type != EventTypeProposalCreated {
		t.Fatalf("expected created event, got %+v", emitter.events)
	}
	checkCounterInvariant(t, state)
}

func TestCreateFeeIsFixedFromConfigAtCreation(t *testing.T) {
	engine, state, _ := newTestEngine(t, coin(100, "uom"))
	proposer := newTestAddress(0x01)
	receiver := newTestAddress(0x02)
	owner := newTestAddress(0xEE)
	if err := state.ProposalSetOwner(owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	if _, err := engine.Create(proposer, receiver, "", "", nil, []Coin{coin(100, "uom")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	newFee := coin(500, "uom")
	if err := engine.UpdateConfig(owner, &newFee); err != nil {
		t.Fatalf("update config: %v", err)
	}

	stored, _, err := state.ProposalGet(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Fee.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("fee retroactively changed: %s", stored.Fee)
	}
}

func TestCancelRefundsAndDeletes(t *testing.T) {
	engine, state, emitter := newTestEngine(t, coin(100, "uom"))
	proposer := newTestAddress(0x01)
	receiver := newTestAddress(0x02)

	if _, err := engine.Create(proposer, receiver, "", "", []Coin{coin(50, "uom"), coin(10, "ibc/xxx")}, []Coin{coin(150, "uom"), coin(10, "ibc/xxx")}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := engine.Cancel(1, receiver); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized cancel, got %v", err)
	}

	transfers, err := engine.Cancel(1, proposer)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected one refund transfer, got %d", len(transfers))
	}
	if transfers[0].To != proposer {
		t.Fatalf("refund routed to wrong account")
	}
	if got := CoinsString(transfers[0].Amount); got != "10ibc/xxx,150uom" {
		t.Fatalf("unexpected refund: %s", got)
	}

	if _, ok, _ := state.ProposalGet(1); ok {
		t.Fatalf("proposal should be deleted after cancel")
	}
	if _, err := engine.Cancel(1, proposer); err != ErrNotFound {
		t.Fatalf("expected not found on second cancel, got %v", err)
	}
	last := emitter.events[len(emitter.events)-1]
	if last.Type != EventTypeProposalCancelled {
		t.Fatalf("expected cancelled event, got %s", last.Type)
	}
	if last.Attributes["totalRefundToProposer"] != "10ibc/xxx,150uom" {
		t.Fatalf("unexpected refund attribute: %s", last.Attributes["totalRefundToProposer"])
	}
	checkCounterInvariant(t, state)
}

func TestAcceptRoutesFeeToOwnerAndGiftToReceiver(t *testing.T) {
	engine, state, _ := newTestEngine(t, coin(100, "uom"))
	proposer := newTestAddress(0x01)
	receiver := newTestAddress(0x02)
	owner := newTestAddress(0xEE)
	if err := state.ProposalSetOwner(owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	if _, err := engine.Create(proposer, receiver, "", "", []Coin{coin(50, "uom")}, []Coin{coin(150, "uom")}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := engine.Accept(1, proposer, "yes"); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized accept, got %v", err)
	}

	transfers, err := engine.Accept(1, receiver, "of course")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected fee and gift transfers, got %d", len(transfers))
	}
	if transfers[0].To != owner || CoinsString(transfers[0].Amount) != "100uom" {
		t.Fatalf("fee misrouted: %+v", transfers[0])
	}
	if transfers[1].To != receiver || CoinsString(transfers[1].Amount) != "50uom" {
		t.Fatalf("gift misrouted: %+v", transfers[1])
	}

	stored, _, err := state.ProposalGet(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusAccepted || stored.Reply != "of course" || stored.RepliedAt != 42 {
		t.Fatalf("terminal fields wrong: %+v", stored)
	}
	checkCounterInvariant(t, state)
}

func TestAcceptFeeFallsBackToProposerWithoutOwner(t *testing.T) {
	engine, _, _ := newTestEngine(t, coin(100, "uom"))
	proposer := newTestAddress(0x01)
	receiver := newTestAddress(0x02)

	if _, err := engine.Create(proposer, receiver, "", "", nil, []Coin{coin(100, "uom")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	transfers, err := engine.Accept(1, receiver, "")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected fee transfer only, got %d", len(transfers))
	}
	if transfers[0].To != proposer {
		t.Fatalf("ownerless fee must return to proposer")
	}
}

func TestRespondRequiresPendingStatus(t *testing.T) {
	engine, state, _ := newTestEngine(t, coin(100, "uom"))
	proposer := newTestAddress(0x01)
	receiver := newTestAddress(0x02)

	if _, err := engine.Create(proposer, receiver, "", "", nil, []Coin{coin(100, "uom")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Accept(1, receiver, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var respondErr *RespondInvalidStatusError
	if _, err := engine.Accept(1, receiver, ""); !errors.As(err, &respondErr) {
		t.Fatalf("expected respond status error, got %v", err)
	}
	if respondErr.CurrentStatus != StatusAccepted {
		t.Fatalf("unexpected status in error: %s", respondErr.CurrentStatus)
	}
	if _, err := engine.Decline(1, receiver, ""); !errors.As(err, &respondErr) {
		t.Fatalf("expected respond status error on decline, got %v", err)
	}

	var cancelErr *CancelInvalidStatusError
	if _, err := engine.Cancel(1, proposer); !errors.As(err, &cancelErr) {
		t.Fatalf("expected cancel status error, got %v", err)
	}
	checkCounterInvariant(t, state)
}

func TestDeclineRefundsProposer(t *testing.T) {
	engine, state, emitter := newTestEngine(t, coin(100, "uom"))
	proposer := newTestAddress(0x01)
	receiver := newTestAddress(0x02)

	if _, err := engine.Create(proposer, receiver, "", "", []Coin{coin(50, "ibc/xxx")}, []Coin{coin(100, "uom"), coin(50, "ibc/xxx")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	transfers, err := engine.Decline(1, receiver, "sorry")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if len(transfers) != 1 || transfers[0].To != proposer {
		t.Fatalf("refund misrouted: %+v", transfers)
	}
	if got := CoinsString(transfers[0].Amount); got != "50ibc/xxx,100uom" {
		t.Fatalf("unexpected refund: %s", got)
	}

	stored, _, err := state.ProposalGet(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusDeclined || stored.Reply != "sorry" {
		t.Fatalf("terminal fields wrong: %+v", stored)
	}
	last := emitter.events[len(emitter.events)-1]
	if last.Type != EventTypeProposalDeclined {
		t.Fatalf("expected declined event, got %s", last.Type)
	}
	checkCounterInvariant(t, state)
}

func TestCounterInvariantAcrossMixedOperations(t *testing.T) {
	engine, state, _ := newTestEngine(t, coin(100, "uom"))
	receiver := newTestAddress(0x02)

	for i := 0; i < 6; i++ {
		proposer := newTestAddress(byte(0x10 + i))
		if _, err := engine.Create(proposer, receiver, "", "", nil, []Coin{coin(100, "uom")}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		checkCounterInvariant(t, state)
	}
	if _, err := engine.Accept(1, receiver, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}
	checkCounterInvariant(t, state)
	if _, err := engine.Decline(2, receiver, ""); err != nil {
		t.Fatalf("decline: %v", err)
	}
	checkCounterInvariant(t, state)
	if _, err := engine.Cancel(3, newTestAddress(0x12)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	checkCounterInvariant(t, state)

	counters, err := state.Counters()
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters.Pending() != 3 {
		t.Fatalf("expected 3 pending, got %d", counters.Pending())
	}
}

func TestUpdateConfigRequiresOwner(t *testing.T) {
	engine, state, _ := newTestEngine(t, coin(100, "uom"))
	owner := newTestAddress(0xEE)
	stranger := newTestAddress(0x33)

	newFee := coin(250, "uom")
	if err := engine.UpdateConfig(stranger, &newFee); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized without owner, got %v", err)
	}
	if err := state.ProposalSetOwner(owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if err := engine.UpdateConfig(stranger, &newFee); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized for stranger, got %v", err)
	}
	if err := engine.UpdateConfig(owner, &newFee); err != nil {
		t.Fatalf("update config: %v", err)
	}
	cfg, ok, err := state.ProposalConfig()
	if err != nil || !ok {
		t.Fatalf("config: %v", err)
	}
	if cfg.SuccessfulProposalFee.Amount.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("fee not updated: %s", cfg.SuccessfulProposalFee)
	}
}

func TestOwnershipTransferAndRenounce(t *testing.T) {
	engine, state, _ := newTestEngine(t, coin(100, "uom"))
	owner := newTestAddress(0xEE)
	next := newTestAddress(0xDD)
	if err := state.ProposalSetOwner(owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	if err := engine.TransferOwnership(next, next); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized transfer, got %v", err)
	}
	if err := engine.TransferOwnership(owner, next); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got, ok, err := state.ProposalOwner()
	if err != nil || !ok || got != next {
		t.Fatalf("owner not transferred: %v %v", got, err)
	}
	if err := engine.RenounceOwnership(next); err != nil {
		t.Fatalf("renounce: %v", err)
	}
	if _, ok, _ := state.ProposalOwner(); ok {
		t.Fatalf("owner should be cleared")
	}
}
