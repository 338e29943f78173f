package core

import (
	"fmt"
	"time"

	"proposalpay/core/events"
	"proposalpay/core/state"
	"proposalpay/native/proposal"
	"proposalpay/storage"
)

// Node ties the proposal engine to a persistent state manager and an event
// emitter. It is the single entry point the RPC and gateway layers talk to.
type Node struct {
	db      storage.Database
	manager *state.Manager
	engine  *proposal.Engine
}

// NewNode opens the proposal state on the given database and wires the
// engine. Timestamps default to wall-clock unix seconds; tests override the
// clock through SetClock.
func NewNode(db storage.Database, emitter events.Emitter) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: nil database")
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	manager := state.NewManager(db)
	engine := proposal.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(emitter)
	engine.SetHeightFunc(func() uint64 { return uint64(time.Now().Unix()) })
	return &Node{db: db, manager: manager, engine: engine}, nil
}

// SetClock replaces the timestamp source used for CreatedAt and RepliedAt.
func (n *Node) SetClock(now func() uint64) {
	n.engine.SetHeightFunc(now)
}

// commit runs fn inside a state transaction so every write an operation
// makes lands in one batch, or none do.
func (n *Node) commit(fn func() error) error {
	n.manager.Begin()
	if err := fn(); err != nil {
		n.manager.Rollback()
		return err
	}
	return n.manager.Commit()
}

// Bootstrap seeds the module configuration and optional owner. Existing
// records are left untouched, so restarting a node with the same settings is
// a no-op.
func (n *Node) Bootstrap(fee proposal.Coin, owner *[20]byte) error {
	return n.commit(func() error { return n.bootstrap(fee, owner) })
}

func (n *Node) bootstrap(fee proposal.Coin, owner *[20]byte) error {
	if _, ok, err := n.manager.ProposalConfig(); err != nil {
		return err
	} else if !ok {
		if err := n.manager.ProposalSetConfig(&proposal.Config{SuccessfulProposalFee: fee.Clone()}); err != nil {
			return err
		}
	}
	if owner == nil {
		return nil
	}
	if _, ok, err := n.manager.ProposalOwner(); err != nil {
		return err
	} else if !ok {
		return n.manager.ProposalSetOwner(*owner)
	}
	return nil
}

// CreateProposal escrows the attached funds and records a pending proposal.
func (n *Node) CreateProposal(proposer, receiver [20]byte, title, speech string, gift, funds []proposal.Coin) (*proposal.Proposal, error) {
	var created *proposal.Proposal
	err := n.commit(func() error {
		var err error
		created, err = n.engine.Create(proposer, receiver, title, speech, gift, funds)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CancelProposal removes a pending proposal and returns the refund transfer.
func (n *Node) CancelProposal(id uint64, caller [20]byte) ([]proposal.Transfer, error) {
	var transfers []proposal.Transfer
	err := n.commit(func() error {
		var err error
		transfers, err = n.engine.Cancel(id, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// AcceptProposal records acceptance and returns the payout transfers.
func (n *Node) AcceptProposal(id uint64, caller [20]byte, reply string) ([]proposal.Transfer, error) {
	var transfers []proposal.Transfer
	err := n.commit(func() error {
		var err error
		transfers, err = n.engine.Accept(id, caller, reply)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// DeclineProposal records refusal and returns the refund transfer.
func (n *Node) DeclineProposal(id uint64, caller [20]byte, reply string) ([]proposal.Transfer, error) {
	var transfers []proposal.Transfer
	err := n.commit(func() error {
		var err error
		transfers, err = n.engine.Decline(id, caller, reply)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// UpdateProposalConfig replaces the creation fee. Owner only.
func (n *Node) UpdateProposalConfig(caller [20]byte, fee *proposal.Coin) error {
	return n.commit(func() error { return n.engine.UpdateConfig(caller, fee) })
}

// TransferOwnership hands module ownership to a new address. Owner only.
func (n *Node) TransferOwnership(caller, newOwner [20]byte) error {
	return n.commit(func() error { return n.engine.TransferOwnership(caller, newOwner) })
}

// RenounceOwnership clears the owner. Accepted fees fall back to proposers
// afterwards.
func (n *Node) RenounceOwnership(caller [20]byte) error {
	return n.commit(func() error { return n.engine.RenounceOwnership(caller) })
}

// GetProposal loads a proposal by id.
func (n *Node) GetProposal(id uint64) (*proposal.Proposal, bool, error) {
	return n.manager.ProposalGet(id)
}

// ListProposals runs a filtered list query.
func (n *Node) ListProposals(q state.ListQuery) ([]*proposal.Proposal, error) {
	return n.manager.ProposalList(q)
}

// ProposalConfig returns the current module configuration.
func (n *Node) ProposalConfig() (*proposal.Config, bool, error) {
	return n.manager.ProposalConfig()
}

// ProposalOwner returns the module owner, if set.
func (n *Node) ProposalOwner() ([20]byte, bool, error) {
	return n.manager.ProposalOwner()
}

// Counters reads the lifecycle tallies.
func (n *Node) Counters() (proposal.Counters, error) {
	return n.manager.Counters()
}

// StatusSummary is a snapshot of the module's lifecycle tallies plus the
// ownership flag, served by the status endpoints.
type StatusSummary struct {
	Total     uint64
	Pending   uint64
	Accepted  uint64
	Declined  uint64
	Cancelled uint64
	OwnerSet  bool
}

// Status assembles a StatusSummary.
func (n *Node) Status() (StatusSummary, error) {
	counters, err := n.manager.Counters()
	if err != nil {
		return StatusSummary{}, err
	}
	_, ownerSet, err := n.manager.ProposalOwner()
	if err != nil {
		return StatusSummary{}, err
	}
	return StatusSummary{
		Total:     counters.Total,
		Pending:   counters.Pending(),
		Accepted:  counters.Accepted,
		Declined:  counters.Declined,
		Cancelled: counters.Cancelled,
		OwnerSet:  ownerSet,
	}, nil
}
