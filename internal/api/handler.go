// Package api exposes a pool over HTTP.
package api

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pasanaco/internal/ledger"
	"pasanaco/internal/model"
	"pasanaco/internal/pool"
)

// Service is the pool surface the handler drives. *pool.Pool implements it.
type Service interface {
	Register(ctx context.Context, participant common.Address) error
	Deposit(ctx context.Context, participant common.Address) error
	Redeem(ctx context.Context) (pool.Payout, error)
	Snapshot() model.PoolSnapshot
	MaxDepositAmount() *big.Int
	ParticipantOnTurn() (common.Address, error)
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
}

// Handler wires pool endpoints to the pool service.
type Handler struct {
	service Service
	faucet  ledger.Faucet
	logger  *zap.Logger
}

// New constructs a pool handler. faucet may be nil, in which case the ledger
// endpoints are not mounted.
func New(service Service, faucet ledger.Faucet, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		faucet:  faucet,
		logger:  logger,
	}
}

// Register mounts pool endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/pool", h.HandleGetPool)
	r.Post("/participants", h.HandleRegister)
	r.Post("/deposits", h.HandleDeposit)
	r.Post("/redeem", h.HandleRedeem)
	r.Get("/balances/{address}", h.HandleBalance)
	if h.faucet != nil {
		r.Post("/ledger/mint", h.HandleMint)
		r.Post("/ledger/approve", h.HandleApprove)
	}
}

// Router builds the full HTTP surface: pool endpoints plus /metrics served
// from gatherer when it is non-nil.
func Router(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	h.Register(r)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// HandleGetPool handles GET /pool.
func (h *Handler) HandleGetPool(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()
	resp := poolResponse{
		PoolSnapshot:     snap,
		MaxDepositAmount: h.service.MaxDepositAmount().String(),
		RoundComplete:    len(snap.Participants) > 0 && len(snap.Deposited) == len(snap.Participants),
	}
	if onTurn, err := h.service.ParticipantOnTurn(); err == nil {
		resp.ParticipantOnTurn = onTurn.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRegister handles POST /participants.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	participant, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	if err := h.service.Register(r.Context(), participant); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, participantResponse{Address: participant.Hex()})
}

// HandleDeposit handles POST /deposits.
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	participant, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	if err := h.service.Deposit(r.Context(), participant); err != nil {
		h.writeError(w, r, err)
		return
	}
	snap := h.service.Snapshot()
	writeJSON(w, http.StatusOK, depositResponse{
		Address:         participant.Hex(),
		Turn:            snap.CurrentTurn,
		TotalAssetsHeld: snap.TotalAssetsHeld,
	})
}

// HandleRedeem handles POST /redeem.
func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	payout, err := h.service.Redeem(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutResponse{
		Turn:      payout.Turn,
		Recipient: payout.Recipient.Hex(),
		Amount:    payout.Amount.String(),
	})
}

// HandleBalance handles GET /balances/{address}.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	balance, err := h.service.BalanceOf(r.Context(), holder)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: holder.Hex(), Balance: balance.String()})
}

// HandleMint handles POST /ledger/mint.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	holder, amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if err := h.faucet.Mint(r.Context(), holder, amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Address: holder.Hex(), Amount: amount.String()})
}

// HandleApprove handles POST /ledger/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	holder, amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if err := h.faucet.Approve(r.Context(), holder, amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Address: holder.Hex(), Amount: amount.String()})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}
