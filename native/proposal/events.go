package proposal

import (
	"encoding/hex"
	"strconv"

	"proposalpay/core/events"
)

const (
	EventTypeProposalCreated   = "proposal.created"
	EventTypeProposalCancelled = "proposal.cancelled"
	EventTypeProposalAccepted  = "proposal.accepted"
	EventTypeProposalDeclined  = "proposal.declined"
	EventTypeConfigUpdated     = "proposal.config_updated"
	EventTypeOwnershipUpdated  = "proposal.ownership_updated"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// proposal.
func NewCreatedEvent(p *Proposal) *events.Payload {
	attrs := baseAttributes(p)
	if p != nil {
		attrs["fee"] = p.Fee.String()
		if len(p.Gift) > 0 {
			attrs["gift"] = CoinsString(p.Gift)
		}
	}
	return &events.Payload{Type: EventTypeProposalCreated, Attributes: attrs}
}

// NewCancelledEvent reports a proposer cancellation together with the
// aggregated refund routed back to the proposer.
func NewCancelledEvent(p *Proposal, refund []Coin) *events.Payload {
	attrs := baseAttributes(p)
	attrs["totalRefundToProposer"] = CoinsString(refund)
	return &events.Payload{Type: EventTypeProposalCancelled, Attributes: attrs}
}

// NewAcceptedEvent reports an acceptance, including who collected the fee and
// what the receiver was paid.
func NewAcceptedEvent(p *Proposal, feeRecipient [20]byte) *events.Payload {
	attrs := baseAttributes(p)
	if p != nil {
		attrs["reply"] = p.Reply
		attrs["feeReceivedBy"] = hex.EncodeToString(feeRecipient[:])
		attrs["fee"] = p.Fee.String()
		if len(p.Gift) > 0 {
			attrs["giftReceivedByReceiver"] = CoinsString(p.Gift)
		}
	}
	return &events.Payload{Type: EventTypeProposalAccepted, Attributes: attrs}
}

// NewDeclinedEvent reports a refusal together with the aggregated refund
// routed back to the proposer.
func NewDeclinedEvent(p *Proposal, refund []Coin) *events.Payload {
	attrs := baseAttributes(p)
	if p != nil {
		attrs["reply"] = p.Reply
	}
	attrs["totalRefundToProposer"] = CoinsString(refund)
	return &events.Payload{Type: EventTypeProposalDeclined, Attributes: attrs}
}

// NewConfigUpdatedEvent reports the new creation fee after an owner update.
func NewConfigUpdatedEvent(cfg *Config) *events.Payload {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["successfulProposalFee"] = cfg.SuccessfulProposalFee.String()
	}
	return &events.Payload{Type: EventTypeConfigUpdated, Attributes: attrs}
}

// NewOwnershipEvent reports an ownership transfer, or renouncement when owner
// is nil.
func NewOwnershipEvent(owner *[20]byte) *events.Payload {
	attrs := make(map[string]string)
	if owner != nil {
		attrs["owner"] = hex.EncodeToString(owner[:])
	} else {
		attrs["renounced"] = "true"
	}
	return &events.Payload{Type: EventTypeOwnershipUpdated, Attributes: attrs}
}

func baseAttributes(p *Proposal) map[string]string {
	attrs := make(map[string]string)
	if p == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(p.ID, 10)
	attrs["proposer"] = hex.EncodeToString(p.Proposer[:])
	attrs["receiver"] = hex.EncodeToString(p.Receiver[:])
	attrs["status"] = p.Status.String()
	return attrs
}
