package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"proposalpay/core/state"
	"proposalpay/crypto"
	"proposalpay/native/proposal"
	"proposalpay/observability/logging"
)

type coinJSON struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

func coinToJSON(c proposal.Coin) coinJSON {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	return coinJSON{Denom: c.Denom, Amount: amount}
}

func coinsToJSON(coins []proposal.Coin) []coinJSON {
	out := make([]coinJSON, len(coins))
	for i, c := range coins {
		out[i] = coinToJSON(c)
	}
	return out
}

func parseCoin(raw coinJSON) (proposal.Coin, error) {
	denom := strings.TrimSpace(raw.Denom)
	if denom == "" {
		return proposal.Coin{}, fmt.Errorf("coin denom required")
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw.Amount), 10)
	if !ok {
		return proposal.Coin{}, fmt.Errorf("coin amount %q is not a base-10 integer", raw.Amount)
	}
	if amount.Sign() < 0 {
		return proposal.Coin{}, fmt.Errorf("coin amount must not be negative")
	}
	return proposal.Coin{Denom: denom, Amount: amount}, nil
}

func parseCoins(raw []coinJSON) ([]proposal.Coin, error) {
	coins := make([]proposal.Coin, 0, len(raw))
	for _, c := range raw {
		parsed, err := parseCoin(c)
		if err != nil {
			return nil, err
		}
		coins = append(coins, parsed)
	}
	return coins, nil
}

func parseBech32Address(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

func bech32String(addr [20]byte) string {
	return crypto.NewAddress(crypto.PayPrefix, addr[:]).String()
}

type proposalJSON struct {
	ID        uint64     `json:"id"`
	Proposer  string     `json:"proposer"`
	Receiver  string     `json:"receiver"`
	Fee       coinJSON   `json:"fee"`
	Gift      []coinJSON `json:"gift,omitempty"`
	Title     string     `json:"title,omitempty"`
	Speech    string     `json:"speech,omitempty"`
	Reply     string     `json:"reply,omitempty"`
	Status    string     `json:"status"`
	CreatedAt uint64     `json:"createdAt"`
	RepliedAt uint64     `json:"repliedAt,omitempty"`
}

func proposalToJSON(p *proposal.Proposal) proposalJSON {
	return proposalJSON{
		ID:        p.ID,
		Proposer:  bech32String(p.Proposer),
		Receiver:  bech32String(p.Receiver),
		Fee:       coinToJSON(p.Fee),
		Gift:      coinsToJSON(p.Gift),
		Title:     p.Title,
		Speech:    p.Speech,
		Reply:     p.Reply,
		Status:    p.Status.String(),
		CreatedAt: p.CreatedAt,
		RepliedAt: p.RepliedAt,
	}
}

type transferJSON struct {
	To     string     `json:"to"`
	Amount []coinJSON `json:"amount"`
}

func transfersToJSON(transfers []proposal.Transfer) []transferJSON {
	out := make([]transferJSON, len(transfers))
	for i, tr := range transfers {
		out[i] = transferJSON{To: bech32String(tr.To), Amount: coinsToJSON(tr.Amount)}
	}
	return out
}

// writeEngineError maps engine errors onto RPC error codes.
func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	var feeErr *proposal.InvalidCreationFeeError
	var cancelErr *proposal.CancelInvalidStatusError
	var respondErr *proposal.RespondInvalidStatusError
	switch {
	case errors.Is(err, proposal.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, "proposal not found", nil)
	case errors.Is(err, proposal.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeForbidden, "unauthorized", nil)
	case errors.Is(err, proposal.ErrInvalidReceiver):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "receiver must differ from proposer", nil)
	case errors.As(err, &feeErr):
		writeError(w, http.StatusBadRequest, id, codeFeeRejected, "invalid proposal creation fee", map[string]string{
			"amount":   feeErr.Amount.String(),
			"expected": feeErr.Expected.String(),
		})
	case errors.Is(err, proposal.ErrGiftFeeNotPaid):
		writeError(w, http.StatusBadRequest, id, codeFeeRejected, "gift fee not paid", nil)
	case errors.Is(err, proposal.ErrExtraFundsSent):
		writeError(w, http.StatusBadRequest, id, codeFeeRejected, "extra funds sent", nil)
	case errors.As(err, &cancelErr):
		writeError(w, http.StatusConflict, id, codeConflict, "proposal cannot be cancelled", map[string]string{
			"currentStatus": cancelErr.CurrentStatus.String(),
		})
	case errors.As(err, &respondErr):
		writeError(w, http.StatusConflict, id, codeConflict, "proposal already answered", map[string]string{
			"currentStatus": respondErr.CurrentStatus.String(),
		})
	case errors.Is(err, proposal.ErrArithmeticOverflow), errors.Is(err, proposal.ErrArithmeticUnderflow):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		// Keep storage and encoding details out of the response body.
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", nil)
	}
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

type proposalCreateParams struct {
	Proposer string     `json:"proposer"`
	Receiver string     `json:"receiver"`
	Title    string     `json:"title,omitempty"`
	Speech   string     `json:"speech,omitempty"`
	Gift     []coinJSON `json:"gift,omitempty"`
	Funds    []coinJSON `json:"funds"`
}

func (s *Server) handleProposalCreate(w http.ResponseWriter, req *RPCRequest) {
	var params proposalCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	proposer, err := parseBech32Address(params.Proposer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	receiver, err := parseBech32Address(params.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	gift, err := parseCoins(params.Gift)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	funds, err := parseCoins(params.Funds)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	created, err := s.node.CreateProposal(proposer, receiver, params.Title, params.Speech, gift, funds)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("proposal created",
		"proposalId", created.ID,
		"proposer", params.Proposer,
		"receiver", params.Receiver,
		logging.MaskField("title", params.Title),
	)
	writeResult(w, req.ID, proposalToJSON(created))
}

type proposalActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Reply  string `json:"reply,omitempty"`
}

func (s *Server) handleProposalCancel(w http.ResponseWriter, req *RPCRequest) {
	var params proposalActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	transfers, err := s.node.CancelProposal(params.ID, caller)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("proposal cancelled", "proposalId", params.ID)
	writeResult(w, req.ID, map[string]interface{}{"transfers": transfersToJSON(transfers)})
}

func (s *Server) handleProposalRespond(w http.ResponseWriter, req *RPCRequest, accept bool) {
	var params proposalActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var transfers []proposal.Transfer
	if accept {
		transfers, err = s.node.AcceptProposal(params.ID, caller, params.Reply)
	} else {
		transfers, err = s.node.DeclineProposal(params.ID, caller, params.Reply)
	}
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	status := proposal.StatusDeclined
	if accept {
		status = proposal.StatusAccepted
	}
	s.logger.Info("proposal answered",
		"proposalId", params.ID,
		"status", status.String(),
		logging.MaskField("reply", params.Reply),
	)
	writeResult(w, req.ID, map[string]interface{}{
		"status":    status.String(),
		"transfers": transfersToJSON(transfers),
	})
}

type updateConfigParams struct {
	Caller string   `json:"caller"`
	Fee    coinJSON `json:"fee"`
}

func (s *Server) handleProposalUpdateConfig(w http.ResponseWriter, req *RPCRequest) {
	var params updateConfigParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	fee, err := parseCoin(params.Fee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.UpdateProposalConfig(caller, &fee); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("proposal config updated", "denom", fee.Denom, "amount", fee.Amount.String())
	writeResult(w, req.ID, map[string]interface{}{"fee": coinToJSON(fee)})
}

type transferOwnershipParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

func (s *Server) handleProposalTransferOwnership(w http.ResponseWriter, req *RPCRequest) {
	var params transferOwnershipParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	newOwner, err := parseBech32Address(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TransferOwnership(caller, newOwner); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": params.NewOwner})
}

type renounceOwnershipParams struct {
	Caller string `json:"caller"`
}

func (s *Server) handleProposalRenounceOwnership(w http.ResponseWriter, req *RPCRequest) {
	var params renounceOwnershipParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.RenounceOwnership(caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"owner": nil})
}

type proposalIDParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleProposalGet(w http.ResponseWriter, req *RPCRequest) {
	var params proposalIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	p, ok, err := s.node.GetProposal(params.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "proposal not found", nil)
		return
	}
	writeResult(w, req.ID, proposalToJSON(p))
}

type proposalListParams struct {
	Proposer   string `json:"proposer,omitempty"`
	Receiver   string `json:"receiver,omitempty"`
	Status     string `json:"status,omitempty"`
	Limit      uint32 `json:"limit,omitempty"`
	Descending bool   `json:"descending,omitempty"`
}

func (s *Server) handleProposalList(w http.ResponseWriter, req *RPCRequest) {
	var params proposalListParams
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	query := state.ListQuery{Limit: params.Limit, Descending: params.Descending}
	if strings.TrimSpace(params.Proposer) != "" {
		proposer, err := parseBech32Address(params.Proposer)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		query.Proposer = &proposer
	}
	if strings.TrimSpace(params.Receiver) != "" {
		receiver, err := parseBech32Address(params.Receiver)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		query.Receiver = &receiver
	}
	if strings.TrimSpace(params.Status) != "" {
		status, err := proposal.ParseStatus(params.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		query.Status = &status
	}

	results, err := s.node.ListProposals(query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", err.Error())
		return
	}
	list := make([]proposalJSON, len(results))
	for i, p := range results {
		list[i] = proposalToJSON(p)
	}
	writeResult(w, req.ID, map[string]interface{}{"proposals": list})
}

func (s *Server) handleProposalGetConfig(w http.ResponseWriter, req *RPCRequest) {
	cfg, ok, err := s.node.ProposalConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "module not configured", nil)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"fee": coinToJSON(cfg.SuccessfulProposalFee)})
}

func (s *Server) handleProposalOwner(w http.ResponseWriter, req *RPCRequest) {
	owner, ok, err := s.node.ProposalOwner()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", err.Error())
		return
	}
	if !ok {
		writeResult(w, req.ID, map[string]interface{}{"owner": nil})
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": bech32String(owner)})
}

type statusResult struct {
	Total     uint64 `json:"total"`
	Pending   uint64 `json:"pending"`
	Accepted  uint64 `json:"accepted"`
	Declined  uint64 `json:"declined"`
	Cancelled uint64 `json:"cancelled"`
	OwnerSet  bool   `json:"ownerSet"`
}

func (s *Server) handleProposalStatus(w http.ResponseWriter, req *RPCRequest) {
	summary, err := s.node.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", err.Error())
		return
	}
	writeResult(w, req.ID, statusResult{
		Total:     summary.Total,
		Pending:   summary.Pending,
		Accepted:  summary.Accepted,
		Declined:  summary.Declined,
		Cancelled: summary.Cancelled,
		OwnerSet:  summary.OwnerSet,
	})
}
