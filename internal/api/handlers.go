package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"costbasis/internal/importer"
	"costbasis/pkg/costbasis"
	"costbasis/pkg/portfolio"
)

const dateLayout = "2006-01-02"

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.core != nil {
		if err := h.core.Ping(); err != nil {
			writeErrorResponse(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listImports(w http.ResponseWriter, r *http.Request) {
	batches, err := h.core.ListBatches(r.Context())
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, batches)
}

func (h *handler) importRows(w http.ResponseWriter, r *http.Request) {
	var payload importRowsPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := make([]costbasis.Row, len(payload.Rows))
	for i, row := range payload.Rows {
		rows[i] = costbasis.Row(row)
	}
	result, err := h.core.ImportRows(r.Context(), payload.Source, rows)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	writeSuccessWithMessage(w, "imported", result)
}

func (h *handler) importCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := importer.ParseCSV(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "csv"
	}
	result, err := h.core.ImportRows(r.Context(), source, rows)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	writeSuccessWithMessage(w, "imported", result)
}

func (h *handler) deleteImport(w http.ResponseWriter, r *http.Request) {
	if err := h.core.DeleteBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *handler) getTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset := normalizeLimitOffset(parseIntDefault(query.Get("limit"), 100), parseIntDefault(query.Get("offset"), 0))
	txs, err := h.core.Transactions(r.Context(), portfolio.TransactionFilter{
		InstrumentKey: query.Get("instrument_key"),
		BatchID:       query.Get("batch_id"),
		Action:        query.Get("action"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, transactionsResponse{Items: txs, Limit: limit, Offset: offset})
}

func (h *handler) getRealized(w http.ResponseWriter, r *http.Request) {
	summary, err := h.core.RealizedReport(r.Context())
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	if key := r.URL.Query().Get("instrument_key"); key != "" {
		summary = filterRealized(summary, costbasis.NormalizeKey(key))
	}
	writeSuccess(w, summary)
}

func filterRealized(summary costbasis.RealizedPnLSummary, key string) costbasis.RealizedPnLSummary {
	rows := []costbasis.RealizedPnLRow{}
	for _, row := range summary.ByInstrument {
		if row.InstrumentKey == key {
			rows = append(rows, row)
		}
	}
	out := costbasis.RealizedPnLSummary{
		ByInstrument: rows,
		TotalsByCcy:  costbasis.RealizedByCurrency(rows),
	}
	for _, u := range summary.Unmatched {
		if u.InstrumentKey == key {
			out.Unmatched = append(out.Unmatched, u)
		}
	}
	return out
}

func (h *handler) getUnrealized(w http.ResponseWriter, r *http.Request) {
	report, err := h.core.UnrealizedReport(r.Context())
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, report)
}

func (h *handler) computePnL(w http.ResponseWriter, r *http.Request) {
	var payload computePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txs := make([]costbasis.Transaction, 0, len(payload.Rows)+len(payload.Transactions))
	for _, row := range payload.Rows {
		if tx, ok := costbasis.Normalize(costbasis.Row(row)); ok {
			txs = append(txs, tx)
		}
	}
	for _, tx := range payload.Transactions {
		txs = append(txs, tx.Canonical())
	}
	if len(txs) == 0 {
		writeError(w, http.StatusBadRequest, "no usable transactions")
		return
	}

	rows, err := costbasis.ComputeUnrealizedPnL(r.Context(), txs, costbasis.PriceMap(payload.Prices))
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, computeResponse{
		Realized:   costbasis.ComputeRealizedPnL(txs),
		Unrealized: portfolio.NewUnrealizedReport(rows),
	})
}

func (h *handler) getPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.core.LatestPrices(r.Context())
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, prices)
}

func (h *handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	var payload pricePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.InstrumentKey) == "" {
		writeError(w, http.StatusBadRequest, "instrument_key is required")
		return
	}
	result, err := h.core.UpdatePrice(r.Context(), payload.InstrumentKey, payload.Currency)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadGateway, err)
		return
	}
	writeSuccessWithMessage(w, result.Message, result)
}

func (h *handler) manualUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var payload manualPricePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.core.ManualUpdatePrice(r.Context(), payload.InstrumentKey, payload.Currency, payload.Price); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *handler) refreshPrices(w http.ResponseWriter, r *http.Request) {
	result, err := h.core.RefreshPrices(r.Context())
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, result)
}

func (h *handler) getSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.core.Snapshots(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, snapshots)
}

func (h *handler) takeSnapshot(w http.ResponseWriter, r *http.Request) {
	var payload snapshotPayload
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	asOf, err := parseOptionalDate(payload.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of date")
		return
	}
	snapshots, err := h.core.TakeSnapshot(r.Context(), asOf)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, snapshots)
}

func (h *handler) getReturns(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseOptionalDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of date")
		return
	}
	returns, err := h.core.ReturnsReport(r.Context(), asOf)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, returns)
}

func (h *handler) computeTWR(w http.ResponseWriter, r *http.Request) {
	var payload twrPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, metricResponse{Value: costbasis.ComputeTWR(payload.Periods)})
}

func (h *handler) computeXIRR(w http.ResponseWriter, r *http.Request) {
	var payload xirrPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flows := make([]costbasis.Cashflow, 0, len(payload.Cashflows))
	for _, cf := range payload.Cashflows {
		date, err := parseFlexibleDate(cf.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cashflow date: "+cf.Date)
			return
		}
		flows = append(flows, costbasis.Cashflow{Date: date, Amount: cf.Amount})
	}
	guess := costbasis.DefaultXIRRGuess
	if payload.Guess != nil {
		guess = *payload.Guess
	}
	writeSuccess(w, metricResponse{Value: costbasis.XIRRWithGuess(flows, guess)})
}

func (h *handler) getOperationLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := h.core.OperationLogs(r.Context(), parseIntDefault(query.Get("limit"), 50), parseIntDefault(query.Get("offset"), 0))
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, logs)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func parseOptionalDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return parseFlexibleDate(value)
}

func parseFlexibleDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func normalizeLimitOffset(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type transactionsResponse struct {
	Items  []portfolio.StoredTransaction `json:"items"`
	Limit  int                           `json:"limit"`
	Offset int                           `json:"offset"`
}
