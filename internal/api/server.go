// Package api serves health, metrics, venue status and history over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"market-feed/internal/bar"
	"market-feed/internal/domain"
	"market-feed/internal/ingestion"
	"market-feed/internal/observability"
	"market-feed/internal/storage"
	"market-feed/internal/window"
)

// StatusProvider reports the venues polled by the pipelines.
type StatusProvider interface {
	Status() []ingestion.VenueStatus
	Venue(key domain.VenueKey) (ingestion.VenueStatus, bool)
}

// Options configures the router. Bars, Trades and Gateway are optional;
// their routes answer 404 when unset.
type Options struct {
	Venues  StatusProvider
	Windows *window.Buffer
	Bars    storage.BarStore
	Trades  storage.TradeStore
	Gateway http.Handler
	Now     func() time.Time
	Logger  *zap.Logger
}

type handler struct {
	opts   Options
	logger *zap.Logger
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{opts: opts, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(observability.Handler()))
	r.GET("/venues", h.listVenues)
	r.GET("/venues/:key/stats", h.venueStats)
	r.GET("/venues/:key/bars", h.venueBars)
	r.GET("/venues/:key/trades", h.venueTrades)
	if opts.Gateway != nil {
		r.GET("/ws", gin.WrapH(opts.Gateway))
	}
	return r
}

func (h *handler) listVenues(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"venues": h.opts.Venues.Status()})
}

// venue resolves the :key parameter to a polled venue, writing the error
// response itself when it cannot.
func (h *handler) venue(c *gin.Context) (ingestion.VenueStatus, bool) {
	key, err := domain.ParseVenueKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return ingestion.VenueStatus{}, false
	}
	status, ok := h.opts.Venues.Venue(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "venue not found"})
		return ingestion.VenueStatus{}, false
	}
	return status, true
}

type statsResponse struct {
	Venue  domain.VenueKey `json:"venue"`
	From   int64           `json:"from"`
	To     int64           `json:"to"`
	OHLCV  *domain.OHLCV   `json:"ohlcv"`
	Trades int             `json:"trades"`
}

// venueStats summarizes the trailing 24h window of a market.
func (h *handler) venueStats(c *gin.Context) {
	status, ok := h.venue(c)
	if !ok {
		return
	}
	if status.Venue.Kind != domain.VenueMarket {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stats are only kept for markets"})
		return
	}

	key := status.Venue.Key
	bbos, trades, err := h.opts.Windows.Range(c.Request.Context(), key, domain.Res24h)
	if err != nil {
		h.logger.Error("failed to read rolling window", zap.Stringer("venue", key), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "window store unavailable"})
		return
	}

	now := h.opts.Now().UnixMilli()
	b := bar.Rolling(key, now, bbos, trades)
	n := 0
	for _, t := range trades {
		if t.Time >= b.Time {
			n++
		}
	}
	c.JSON(http.StatusOK, statsResponse{Venue: key, From: b.Time, To: now, OHLCV: b.OHLCV, Trades: n})
}

func (h *handler) venueBars(c *gin.Context) {
	if h.opts.Bars == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bar history disabled"})
		return
	}
	status, ok := h.venue(c)
	if !ok {
		return
	}
	res, err := domain.ParseResolution(c.DefaultQuery("resolution", string(domain.Res1m)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, err := h.timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.opts.Bars.GetBars(c.Request.Context(), status.Venue.Key, res, start, end)
	if err != nil {
		h.storeError(c, "bars", err)
		return
	}
	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = r.Bar
	}
	c.JSON(http.StatusOK, gin.H{"venue": status.Venue.Key, "bars": bars})
}

func (h *handler) venueTrades(c *gin.Context) {
	if h.opts.Trades == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade history disabled"})
		return
	}
	status, ok := h.venue(c)
	if !ok {
		return
	}
	start, end, err := h.timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.opts.Trades.GetTrades(c.Request.Context(), status.Venue.Key, start, end)
	if err != nil {
		h.storeError(c, "trades", err)
		return
	}
	trades := make([]domain.Trade, len(records))
	for i, r := range records {
		trades[i] = r.Trade
	}
	c.JSON(http.StatusOK, gin.H{"venue": status.Venue.Key, "trades": trades})
}

// timeRange reads start/end (Unix ms). Defaults to the trailing day.
func (h *handler) timeRange(c *gin.Context) (int64, int64, error) {
	end := h.opts.Now().UnixMilli()
	start := end - bar.RollingWindow.Milliseconds()

	if s := c.Query("start"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, errors.New("invalid start")
		}
		start = v
	}
	if s := c.Query("end"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, errors.New("invalid end")
		}
		end = v
	}
	if start > end {
		return 0, 0, errors.New("start after end")
	}
	return start, end, nil
}

func (h *handler) storeError(c *gin.Context, what string, err error) {
	if errors.Is(err, storage.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("history read failed", zap.String("what", what), zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store unavailable"})
}

// Server runs the router on an address.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// NewServer creates a server for addr.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
