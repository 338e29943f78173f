package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"proposalpay/core"
	"proposalpay/core/state"
	"proposalpay/crypto"
	"proposalpay/gateway/middleware"
	"proposalpay/native/proposal"
)

// Server is the read-only REST facade in front of the node. Mutations go
// through JSON-RPC; the gateway only serves queries, health, and metrics.
type Server struct {
	node    *core.Node
	logger  *slog.Logger
	limiter *middleware.RateLimiter
}

// NewServer builds the gateway. A nil limit disables throttling.
func NewServer(node *core.Node, logger *slog.Logger, limit *middleware.RateLimit) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *middleware.RateLimiter
	if limit != nil {
		limiter = middleware.NewRateLimiter(*limit)
	}
	return &Server{node: node, logger: logger.With("component", "gateway"), limiter: limiter}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if s.limiter != nil {
			v1.Use(s.limiter.Middleware())
		}
		v1.Get("/proposals", s.handleListProposals)
		v1.Get("/proposals/{id}", s.handleGetProposal)
		v1.Get("/config", s.handleGetConfig)
		v1.Get("/owner", s.handleGetOwner)
		v1.Get("/status", s.handleGetStatus)
	})

	return otelhttp.NewHandler(r, "gateway")
}

// Start serves the gateway on the given address.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting gateway", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

type coinDTO struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

func coinDTOFrom(c proposal.Coin) coinDTO {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	return coinDTO{Denom: c.Denom, Amount: amount}
}

type proposalDTO struct {
	ID        uint64    `json:"id"`
	Proposer  string    `json:"proposer"`
	Receiver  string    `json:"receiver"`
	Fee       coinDTO   `json:"fee"`
	Gift      []coinDTO `json:"gift,omitempty"`
	Title     string    `json:"title,omitempty"`
	Speech    string    `json:"speech,omitempty"`
	Reply     string    `json:"reply,omitempty"`
	Status    string    `json:"status"`
	CreatedAt uint64    `json:"createdAt"`
	RepliedAt uint64    `json:"repliedAt,omitempty"`
}

func proposalDTOFrom(p *proposal.Proposal) proposalDTO {
	gift := make([]coinDTO, len(p.Gift))
	for i, c := range p.Gift {
		gift[i] = coinDTOFrom(c)
	}
	return proposalDTO{
		ID:        p.ID,
		Proposer:  crypto.NewAddress(crypto.PayPrefix, p.Proposer[:]).String(),
		Receiver:  crypto.NewAddress(crypto.PayPrefix, p.Receiver[:]).String(),
		Fee:       coinDTOFrom(p.Fee),
		Gift:      gift,
		Title:     p.Title,
		Speech:    p.Speech,
		Reply:     p.Reply,
		Status:    p.Status.String(),
		CreatedAt: p.CreatedAt,
		RepliedAt: p.RepliedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeProblem(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid proposal id")
		return
	}
	p, ok, err := s.node.GetProposal(id)
	if err != nil {
		s.logger.Error("proposal lookup failed", "proposalId", id, "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, proposalDTOFrom(p))
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	query := state.ListQuery{}
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("proposer")); raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid proposer address")
			return
		}
		proposer := addr.Raw()
		query.Proposer = &proposer
	}
	if raw := strings.TrimSpace(q.Get("receiver")); raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid receiver address")
			return
		}
		receiver := addr.Raw()
		query.Receiver = &receiver
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := proposal.ParseStatus(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		query.Status = &status
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid limit")
			return
		}
		query.Limit = uint32(limit)
	}
	if raw := strings.TrimSpace(q.Get("descending")); raw != "" {
		descending, err := strconv.ParseBool(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid descending flag")
			return
		}
		query.Descending = descending
	}

	results, err := s.node.ListProposals(query)
	if err != nil {
		s.logger.Error("proposal list failed", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal error")
		return
	}
	list := make([]proposalDTO, len(results))
	for i, p := range results {
		list[i] = proposalDTOFrom(p)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"proposals": list})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, ok, err := s.node.ProposalConfig()
	if err != nil {
		s.logger.Error("config lookup failed", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "module not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fee": coinDTOFrom(cfg.SuccessfulProposalFee)})
}

func (s *Server) handleGetOwner(w http.ResponseWriter, _ *http.Request) {
	owner, ok, err := s.node.ProposalOwner()
	if err != nil {
		s.logger.Error("owner lookup failed", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"owner": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": crypto.NewAddress(crypto.PayPrefix, owner[:]).String()})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	summary, err := s.node.Status()
	if err != nil {
		s.logger.Error("status lookup failed", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":     summary.Total,
		"pending":   summary.Pending,
		"accepted":  summary.Accepted,
		"declined":  summary.Declined,
		"cancelled": summary.Cancelled,
		"ownerSet":  summary.OwnerSet,
	})
}
