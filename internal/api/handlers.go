package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/customs"
	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/store"
)

// calcRequest is the body of POST /api/customs/calc. Either VATPercent or Region must be set.
type calcRequest struct {
	Price       string `json:"price"`
	DutyPercent string `json:"duty_percent"`
	VATPercent  string `json:"vat_percent,omitempty"`
	Region      string `json:"region,omitempty"`
}

// calcResponse carries the estimate formatted with two decimals.
type calcResponse struct {
	Price       string `json:"price"`
	DutyPercent string `json:"duty_percent"`
	VATPercent  string `json:"vat_percent"`
	Duty        string `json:"duty"`
	VAT         string `json:"vat"`
	Total       string `json:"total"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}))
}

// statsHandler returns submission counts by record kind and the most recent records
// (GET /api/stats?recent=N).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentSubmissions
	if v := r.URL.Query().Get("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > MaxRecentSubmissions {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("recent must be a number between 0 and 100"))
			return
		}
		limit = n
	}

	counts, err := s.stats.CountSubmissions(r.Context())
	if err != nil {
		slog.Error("Server.statsHandler: failed to count submissions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch statistics"))
		return
	}
	var recent []store.Submission
	if limit > 0 {
		recent, err = s.stats.ListSubmissions(r.Context(), limit)
		if err != nil {
			slog.Error("Server.statsHandler: failed to list submissions", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch statistics"))
			return
		}
	}
	if recent == nil {
		recent = []store.Submission{}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	slog.Debug("Server.statsHandler: stats computed", "total", total)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"total_submissions":   total,
		"submissions_by_kind": counts,
		"recent_submissions":  recent,
	}))
}

// calcHandler computes a duty and VAT estimate without touching any conversation.
func (s *Server) calcHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req calcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&req); err != nil {
		slog.Warn("Server.calcHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	price, err := customs.ParseAmount(req.Price)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("price must be a non-negative number"))
		return
	}
	duty, err := customs.ParseAmount(req.DutyPercent)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("duty_percent must be a non-negative number"))
		return
	}

	vatText := req.VATPercent
	if req.Region != "" {
		region, ok := s.cat.Region(req.Region)
		if !ok {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("unknown region: "+req.Region))
			return
		}
		vatText = region.Percent
	}
	vat, err := customs.ParseAmount(vatText)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("vat_percent or region is required"))
		return
	}

	res := customs.Calculate(price, duty, vat)
	slog.Debug("Server.calcHandler: estimate computed", "price", res.Price, "duty_percent", res.DutyPercent, "vat_percent", res.VATPercent)
	writeJSONResponse(w, http.StatusOK, models.Success(calcResponse{
		Price:       customs.FormatMoney(res.Price),
		DutyPercent: customs.Canonical(res.DutyPercent),
		VATPercent:  customs.Canonical(res.VATPercent),
		Duty:        customs.FormatMoney(res.DutyAmount),
		VAT:         customs.FormatMoney(res.VATAmount),
		Total:       customs.FormatMoney(res.Total),
	}))
}
