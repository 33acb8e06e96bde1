package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"futuresscreener/internal/binance/collector"
	"futuresscreener/internal/binance/memorystore"
	"futuresscreener/pkg/binance"
	"futuresscreener/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
)

// StatusFunc reports the pipeline status. (*collector.Collector).Status satisfies it.
type StatusFunc func() collector.Status

// AlertLister reads the alert journal. *postgres.PostgresClient satisfies it.
type AlertLister interface {
	ListAlerts(ctx context.Context, symbol string, since time.Time, limit int) ([]postgres.AlertRecord, error)
}

const (
	defaultAlertWindow = 24 * time.Hour
	defaultAlertLimit  = 100
	maxAlertLimit      = 1000
)

type Handler struct {
	status StatusFunc
	store  *memorystore.MarketStore
	alerts AlertLister
}

func NewHandler(status StatusFunc, store *memorystore.MarketStore) *Handler {
	return &Handler{status: status, store: store}
}

// WithAlerts enables /api/alerts backed by the alert journal.
func (h *Handler) WithAlerts(alerts AlertLister) *Handler {
	h.alerts = alerts
	return h
}

// Health always answers 200 while the process serves requests.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status returns the aggregate pipeline status. initialized is true while at
// least one stream connection is open.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

// Market returns every row of the market table, ordered by symbol.
func (h *Handler) Market(c *gin.Context) {
	rows := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "symbols": rows})
}

func (h *Handler) Symbol(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	row, ok := h.store.Get(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
		return
	}
	c.JSON(http.StatusOK, row)
}

type intervalInfo struct {
	Interval binance.Interval `json:"interval"`
	Short    bool             `json:"short"`
	Seconds  int64            `json:"seconds"`
}

// Intervals lists every recognized candle interval in display order.
func (h *Handler) Intervals(c *gin.Context) {
	all := binance.AllIntervals()
	out := make([]intervalInfo, 0, len(all))
	for _, iv := range all {
		out = append(out, intervalInfo{Interval: iv, Short: iv.IsShort(), Seconds: int64(iv.Duration() / time.Second)})
	}
	c.JSON(http.StatusOK, out)
}

// Alerts returns journaled alerts, newest first. Query parameters: symbol,
// since (a duration back from now, default 24h) and limit (default 100).
func (h *Handler) Alerts(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert journal disabled"})
		return
	}

	window := defaultAlertWindow
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since " + v})
			return
		}
		window = d
	}

	limit := defaultAlertLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit " + v})
			return
		}
		limit = min(n, maxAlertLimit)
	}

	symbol := strings.ToUpper(c.Query("symbol"))
	records, err := h.alerts.ListAlerts(c.Request.Context(), symbol, time.Now().Add(-window), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "alerts": records})
}
