package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hourbank/core"
	coreerrors "hourbank/core/errors"
	"hourbank/core/types"
	"hourbank/crypto"
	"hourbank/native/booking"
	nativecommon "hourbank/native/common"
	"hourbank/native/reputation"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNotFound    = errors.New("not found")
)

// receiptStatus maps a failed receipt kind onto an HTTP status.
func receiptStatus(receipt *types.Receipt) int {
	if receipt.Succeeded() {
		return http.StatusOK
	}
	switch receipt.Kind {
	case coreerrors.ErrUnauthorized.Error():
		return http.StatusForbidden
	case coreerrors.ErrNotFound.Error():
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}

func submitErrorStatus(err error) int {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrBadNonce):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnknownMethod), errors.Is(err, core.ErrInvalidArgs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", maxRequestBytes))
		return
	}
	var tx types.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode transaction: %w", err))
		return
	}
	if _, err := tx.From(); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("verify signature: %w", err))
		return
	}
	receipt, err := s.backend.ApplyTransaction(&tx)
	if err != nil {
		status := submitErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("apply transaction failed", "error", err, "requestId", RequestIDFrom(r.Context()))
		}
		writeError(w, r, status, err)
		return
	}
	writeJSON(w, receiptStatus(receipt), receipt)
}

type NonceResponse struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := accountParam(w, r, "addr")
	if !ok {
		return
	}
	nonce, err := s.backend.Nonce(addr)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, NonceResponse{Address: crypto.FromArray(addr).String(), Nonce: nonce})
}

type LedgerResponse struct {
	Height      uint64 `json:"height"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TokenURI    string `json:"tokenUri,omitempty"`
	Owner       string `json:"owner"`
	TotalSupply string `json:"totalSupply"`
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	var resp LedgerResponse
	err := s.backend.View(func(v *core.Views) error {
		meta, err := v.Ledger.Metadata()
		if err != nil {
			return err
		}
		resp = LedgerResponse{
			Height:      v.Height,
			Name:        meta.Name,
			Symbol:      meta.Symbol,
			Decimals:    meta.Decimals,
			TokenURI:    meta.TokenURI,
			Owner:       crypto.FromArray(meta.Owner).String(),
			TotalSupply: meta.TotalSupply.Dec(),
		}
		return nil
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := accountParam(w, r, "addr")
	if !ok {
		return
	}
	var resp BalanceResponse
	err := s.backend.View(func(v *core.Views) error {
		balance, err := v.Ledger.BalanceOf(addr)
		if err != nil {
			return err
		}
		resp = BalanceResponse{Address: crypto.FromArray(addr).String(), Balance: balance.Dec()}
		return nil
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNextBookingID(w http.ResponseWriter, r *http.Request) {
	var next uint64
	err := s.backend.View(func(v *core.Views) error {
		var err error
		next, err = v.Bookings.NextBookingID()
		return err
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"nextId": next})
}

type CompletionResponse struct {
	At          uint64 `json:"at"`
	HoursWorked uint64 `json:"hoursWorked"`
}

type BookingResponse struct {
	ID          uint64              `json:"id"`
	Requester   string              `json:"requester"`
	Provider    string              `json:"provider"`
	SkillID     uint64              `json:"skillId"`
	Description string              `json:"description"`
	Credits     uint64              `json:"credits"`
	Deadline    uint64              `json:"deadline"`
	Status      uint8               `json:"status"`
	StatusName  string              `json:"statusName"`
	CreatedAt   uint64              `json:"createdAt"`
	Completion  *CompletionResponse `json:"completion,omitempty"`
}

func newBookingResponse(b *booking.Booking) BookingResponse {
	resp := BookingResponse{
		ID:          b.ID,
		Requester:   crypto.FromArray(b.Requester).String(),
		Provider:    crypto.FromArray(b.Provider).String(),
		SkillID:     b.SkillID,
		Description: b.Description,
		Credits:     b.Credits,
		Deadline:    b.Deadline,
		Status:      uint8(b.Status),
		StatusName:  b.Status.String(),
		CreatedAt:   b.CreatedAt,
	}
	if b.Completion != nil {
		resp.Completion = &CompletionResponse{At: b.Completion.At, HoursWorked: b.Completion.HoursWorked}
	}
	return resp
}

func (s *Server) handleBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var (
		record *booking.Booking
		found  bool
	)
	err := s.backend.View(func(v *core.Views) error {
		var err error
		record, found, err = v.Bookings.Booking(id)
		return err
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("booking %d: %w", id, errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(record))
}

type ReputationResponse struct {
	Account       string `json:"account"`
	TotalScore    uint64 `json:"totalScore"`
	TotalRatings  uint64 `json:"totalRatings"`
	AverageRating uint64 `json:"averageRating"`
}

// handleReputation reports zero totals for accounts that were never rated.
func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	addr, ok := accountParam(w, r, "addr")
	if !ok {
		return
	}
	resp := ReputationResponse{Account: crypto.FromArray(addr).String()}
	err := s.backend.View(func(v *core.Views) error {
		agg, found, err := v.Reputation.Reputation(addr)
		if err != nil || !found {
			return err
		}
		resp.TotalScore = agg.TotalScore
		resp.TotalRatings = agg.TotalRatings
		resp.AverageRating = agg.AverageRating()
		return nil
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type RatingResponse struct {
	Rater     string `json:"rater"`
	Rated     string `json:"rated"`
	BookingID uint64 `json:"bookingId"`
	Score     uint8  `json:"score"`
	Comment   string `json:"comment"`
	CreatedAt uint64 `json:"createdAt"`
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	rater, ok := accountParam(w, r, "rater")
	if !ok {
		return
	}
	rated, ok := accountParam(w, r, "rated")
	if !ok {
		return
	}
	bookingID, ok := uintParam(w, r, "bookingID")
	if !ok {
		return
	}
	var (
		rating *reputation.Rating
		found  bool
	)
	err := s.backend.View(func(v *core.Views) error {
		var err error
		rating, found, err = v.Reputation.Rating(rater, rated, bookingID)
		return err
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("rating: %w", errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, RatingResponse{
		Rater:     crypto.FromArray(rating.Rater).String(),
		Rated:     crypto.FromArray(rating.Rated).String(),
		BookingID: rating.BookingID,
		Score:     rating.Score,
		Comment:   rating.Comment,
		CreatedAt: rating.CreatedAt,
	})
}

func accountParam(w http.ResponseWriter, r *http.Request, name string) ([20]byte, bool) {
	addr, err := crypto.ParseAccount(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("%s: %w", name, err))
		return [20]byte{}, false
	}
	return addr, true
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	value, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("%s: invalid unsigned integer", name))
		return 0, false
	}
	return value, true
}
