package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/pastagem-atlas-service/internal/adapter/pastagem"
	"github.com/couchcryptid/pastagem-atlas-service/internal/domain"
)

// ReportFetcher fetches raw atlas reports and converts their bodies.
// *pastagem.Client implements it.
type ReportFetcher interface {
	FetchReport(ctx context.Context, req domain.SearchRequest, opts ...pastagem.RequestOption) (*pastagem.Response, error)
	Convert(resp *pastagem.Response) ([]domain.Record, error)
}

type reportHandler struct {
	fetcher ReportFetcher
	logger  *slog.Logger
}

type reportKindInfo struct {
	Report domain.ReportKind `json:"report"`
	File   string            `json:"file"`
}

type reportResponse struct {
	Report     domain.ReportKind         `json:"report"`
	Parameters domain.EndpointParameters `json:"parameters"`
	Count      int                       `json:"count"`
	Records    []domain.Record           `json:"records"`
}

func (h *reportHandler) list(w http.ResponseWriter, _ *http.Request) {
	kinds := domain.ReportKinds()
	out := make([]reportKindInfo, len(kinds))
	for i, k := range kinds {
		out[i] = reportKindInfo{Report: k, File: k.File()}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"reports": out})
}

// get serves GET /reports/{kind}?year=&municipality=&format=json|csv.
func (h *reportHandler) get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := domain.ParseSearchRequest(r.PathValue("kind"), q.Get("year"), q.Get("municipality"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	format := q.Get("format")
	if format != "" && format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
		return
	}

	resp, err := h.fetcher.FetchReport(r.Context(), req)
	if err != nil {
		h.logger.Warn("report fetch failed", "report", req.Kind.String(), "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	if !resp.OK() {
		writeError(w, http.StatusBadGateway, fmt.Errorf("atlas returned status %d", resp.StatusCode))
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", req.Kind.File()+".csv"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp.Body)
		return
	}

	records, err := h.fetcher.Convert(resp)
	if err != nil {
		h.logger.Warn("report conversion failed", "report", req.Kind.String(), "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	sharedobs.WriteJSON(w, http.StatusOK, reportResponse{
		Report:     req.Kind,
		Parameters: resp.Parameters,
		Count:      len(records),
		Records:    records,
	})
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
