package proposal

import (
	"sync"

	"proposalpay/core/events"
)

// engineState is the persistence surface the engine drives. Implementations
// must keep the secondary indexes and counters consistent with every put and
// delete.
type engineState interface {
	ProposalNextID() (uint64, error)
	ProposalPut(*Proposal) error
	ProposalGet(id uint64) (*Proposal, bool, error)
	ProposalDelete(id uint64) error
	ProposalConfig() (*Config, bool, error)
	ProposalSetConfig(*Config) error
	ProposalOwner() ([20]byte, bool, error)
	ProposalSetOwner(addr [20]byte) error
	ProposalClearOwner() error
	CounterIncrement(kind CounterKind) (uint64, error)
	Counters() (Counters, error)
}

type proposalEvent struct {
	evt *events.Payload
}

func (e proposalEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e proposalEvent) Event() *events.Payload { return e.evt }

// Engine wires the proposal lifecycle logic with external state and event
// emitters. Every transition is a decision over (current state, caller,
// attached funds) producing the new state plus declarative transfer
// instructions; the host ledger executes the transfers atomically with the
// request.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	emitter  events.Emitter
	heightFn func() uint64
}

// NewEngine creates a proposal engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHeightFunc overrides the logical clock used to stamp created_at and
// replied_at. The host supplies its block height; tests supply a fixed value.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

func (e *Engine) emit(event *events.Payload) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(proposalEvent{evt: event})
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) loadProposal(id uint64) (*Proposal, error) {
	p, ok, err := e.state.ProposalGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Create validates the fee payment and persists a new pending proposal. The
// attached funds stay escrowed with the host ledger; no transfer instructions
// are emitted at creation time.
func (e *Engine) Create(proposer, receiver [20]byte, title, speech string, gift, funds []Coin) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if proposer == receiver {
		return nil, ErrInvalidReceiver
	}
	cfg, ok, err := e.state.ProposalConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNilConfig
	}

	aggregatedGift, err := AggregateCoins(gift)
	if err != nil {
		return nil, err
	}
	totalRequired, err := ValidateFeesPaid(cfg.SuccessfulProposalFee, aggregatedGift, funds)
	if err != nil {
		return nil, err
	}
	if err := EnsureNoExtraFunds(funds, totalRequired); err != nil {
		return nil, err
	}

	id, err := e.state.ProposalNextID()
	if err != nil {
		return nil, err
	}
	p := &Proposal{
		ID:        id,
		Proposer:  proposer,
		Receiver:  receiver,
		Fee:       cfg.SuccessfulProposalFee.Clone(),
		Gift:      aggregatedGift,
		Title:     title,
		Speech:    speech,
		Status:    StatusPending,
		CreatedAt: e.height(),
	}
	if err := e.state.ProposalPut(p); err != nil {
		return nil, err
	}

	e.emit(NewCreatedEvent(p))
	return p.Clone(), nil
}

// Cancel removes a pending proposal and instructs the host ledger to refund
// the escrowed fee plus gift to the proposer. Only the proposer may cancel.
func (e *Engine) Cancel(id uint64, caller [20]byte) ([]Transfer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.loadProposal(id)
	if err != nil {
		return nil, err
	}
	if p.Proposer != caller {
		return nil, ErrUnauthorized
	}
	if p.Status != StatusPending {
		return nil, &CancelInvalidStatusError{CurrentStatus: p.Status}
	}

	refund, err := AggregateCoins(append([]Coin{p.Fee}, p.Gift...))
	if err != nil {
		return nil, err
	}

	if err := e.state.ProposalDelete(id); err != nil {
		return nil, err
	}
	if _, err := e.state.CounterIncrement(CounterCancelled); err != nil {
		return nil, err
	}

	e.emit(NewCancelledEvent(p, refund))
	return []Transfer{{To: p.Proposer, Amount: refund}}, nil
}

// Accept records the receiver's acceptance. The fee is routed to the owner
// when one is configured, otherwise back to the proposer; a non-empty gift is
// paid out to the receiver.
func (e *Engine) Accept(id uint64, caller [20]byte, reply string) ([]Transfer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.loadProposal(id)
	if err != nil {
		return nil, err
	}
	if p.Receiver != caller {
		return nil, ErrUnauthorized
	}
	if p.Status != StatusPending {
		return nil, &RespondInvalidStatusError{CurrentStatus: p.Status}
	}

	feeRecipient := p.Proposer
	if owner, ok, err := e.state.ProposalOwner(); err != nil {
		return nil, err
	} else if ok {
		feeRecipient = owner
	}

	transfers := []Transfer{{To: feeRecipient, Amount: []Coin{p.Fee.Clone()}}}
	if len(p.Gift) > 0 {
		transfers = append(transfers, Transfer{To: p.Receiver, Amount: CloneCoins(p.Gift)})
	}

	p.Status = StatusAccepted
	p.Reply = reply
	p.RepliedAt = e.height()
	if err := e.state.ProposalPut(p); err != nil {
		return nil, err
	}
	if _, err := e.state.CounterIncrement(CounterAccepted); err != nil {
		return nil, err
	}

	e.emit(NewAcceptedEvent(p, feeRecipient))
	return transfers, nil
}

// Decline records the receiver's refusal and instructs the host ledger to
// refund the fee plus gift, aggregated, back to the proposer.
func (e *Engine) Decline(id uint64, caller [20]byte, reply string) ([]Transfer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.loadProposal(id)
	if err != nil {
		return nil, err
	}
	if p.Receiver != caller {
		return nil, ErrUnauthorized
	}
	if p.Status != StatusPending {
		return nil, &RespondInvalidStatusError{CurrentStatus: p.Status}
	}

	refund, err := AggregateCoins(append([]Coin{p.Fee}, p.Gift...))
	if err != nil {
		return nil, err
	}

	p.Status = StatusDeclined
	p.Reply = reply
	p.RepliedAt = e.height()
	if err := e.state.ProposalPut(p); err != nil {
		return nil, err
	}
	if _, err := e.state.CounterIncrement(CounterDeclined); err != nil {
		return nil, err
	}

	e.emit(NewDeclinedEvent(p, refund))
	return []Transfer{{To: p.Proposer, Amount: refund}}, nil
}

// UpdateConfig replaces the creation fee. Only the configured owner may call
// this.
func (e *Engine) UpdateConfig(caller [20]byte, fee *Coin) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	cfg, ok, err := e.state.ProposalConfig()
	if err != nil {
		return err
	}
	if !ok {
		return errNilConfig
	}
	if fee != nil {
		if err := validateCoin(*fee); err != nil {
			return err
		}
		cfg.SuccessfulProposalFee = fee.Clone()
	}
	if err := e.state.ProposalSetConfig(cfg); err != nil {
		return err
	}

	e.emit(NewConfigUpdatedEvent(cfg))
	return nil
}

// TransferOwnership hands the fee-collection role to a new owner.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.state.ProposalSetOwner(newOwner); err != nil {
		return err
	}
	e.emit(NewOwnershipEvent(&newOwner))
	return nil
}

// RenounceOwnership clears the owner. Afterwards accepted-proposal fees fall
// back to the proposer.
func (e *Engine) RenounceOwnership(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.state.ProposalClearOwner(); err != nil {
		return err
	}
	e.emit(NewOwnershipEvent(nil))
	return nil
}

func (e *Engine) requireOwner(caller [20]byte) error {
	owner, ok, err := e.state.ProposalOwner()
	if err != nil {
		return err
	}
	if !ok || owner != caller {
		return ErrUnauthorized
	}
	return nil
}
