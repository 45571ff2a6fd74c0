package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jktan/assetfolio/internal/models"
)

func (s *Server) handleTransactionList(w http.ResponseWriter, r *http.Request) {
	filter := models.TransactionFilter{
		Tickers:  queryList(r, "tickers"),
		Brokers:  queryList(r, "brokers"),
		DateFrom: r.URL.Query().Get("from"),
		DateTo:   r.URL.Query().Get("to"),
	}
	for _, side := range queryList(r, "sides") {
		filter.Sides = append(filter.Sides, models.Side(side))
	}

	txns, err := s.app.Storage.Transactions().List(r.Context(), filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, txns)
}

func (s *Server) handleTransactionCreate(w http.ResponseWriter, r *http.Request) {
	var txn models.Transaction
	if !DecodeJSON(w, r, &txn) {
		return
	}

	id, err := s.app.Storage.Transactions().Insert(r.Context(), &txn)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.invalidateCaches(r)
	txn.ID = id
	WriteJSON(w, http.StatusCreated, txn)
}

// handleTransactionImport upserts a batch on the natural key, so re-imports
// of an overlapping broker export do not duplicate rows.
func (s *Server) handleTransactionImport(w http.ResponseWriter, r *http.Request) {
	var txns []*models.Transaction
	if !DecodeJSON(w, r, &txns) {
		return
	}

	var created, updated int
	for _, txn := range txns {
		_, wasCreated, err := s.app.Storage.Transactions().Upsert(r.Context(), txn)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if wasCreated {
			created++
		} else {
			updated++
		}
	}

	s.invalidateCaches(r)
	WriteJSON(w, http.StatusOK, map[string]int{
		"created": created,
		"updated": updated,
	})
}

func (s *Server) handleTransactionUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var txn models.Transaction
	if !DecodeJSON(w, r, &txn) {
		return
	}

	if err := s.app.Storage.Transactions().Update(r.Context(), id, &txn); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.invalidateCaches(r)
	txn.ID = id
	WriteJSON(w, http.StatusOK, txn)
}

func (s *Server) handleTransactionDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	if err := s.app.Storage.Transactions().Delete(r.Context(), id); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateCaches(r)
	w.WriteHeader(http.StatusNoContent)
}

// invalidateCaches drops derived caches after a mutation. The fingerprint in
// every cache key already protects correctness; this keeps storage tidy.
func (s *Server) invalidateCaches(r *http.Request) {
	if err := s.app.Invalidate(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Cache invalidation failed")
	}
}
