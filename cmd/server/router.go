package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stockfeed/internal/aggregator"
)

// newRouter exposes the engine to dashboard consumers: snapshot queries,
// provider diagnostics, runtime configuration, and a websocket stream of
// update events.
func newRouter(agg *aggregator.Aggregator, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h := &handler{
		agg: agg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is served from another origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	api := r.Group("/api/v1")
	api.GET("/stocks", h.stocks)
	api.GET("/analysis", h.analysis)
	api.GET("/providers", h.providers)
	api.PUT("/providers/:name/key", h.setKey)
	api.PUT("/interval", h.setInterval)
	api.GET("/stream", h.stream)
	return r
}

type handler struct {
	agg      *aggregator.Aggregator
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func (h *handler) stocks(c *gin.Context) {
	update, ok := h.agg.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no cycle completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocks": update.Stocks, "timestamp": update.Timestamp})
}

func (h *handler) analysis(c *gin.Context) {
	update, ok := h.agg.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no cycle completed yet"})
		return
	}
	c.JSON(http.StatusOK, update.Analysis)
}

func (h *handler) providers(c *gin.Context) {
	c.JSON(http.StatusOK, h.agg.ProviderStatuses())
}

type setKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

func (h *handler) setKey(c *gin.Context) {
	var req setKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := c.Param("name")
	if !h.agg.SetAPIKey(name, req.Key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider: " + name})
		return
	}
	h.log.Info("api key updated", zap.String("provider", name))
	c.Status(http.StatusNoContent)
}

type setIntervalRequest struct {
	IntervalMs int `json:"interval_ms" binding:"required,min=1000"`
}

func (h *handler) setInterval(c *gin.Context) {
	var req setIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.agg.SetInterval(time.Duration(req.IntervalMs) * time.Millisecond)
	c.Status(http.StatusNoContent)
}

// stream upgrades to a websocket and forwards every update event until
// the client goes away. Missed events are dropped, never replayed.
func (h *handler) stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.agg.Subscribe(4)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// New clients get the last snapshot immediately.
	if update, ok := h.agg.Snapshot(); ok {
		if err := conn.WriteJSON(update); err != nil {
			return
		}
	}
	for {
		select {
		case <-closed:
			return
		case update := <-updates:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}
}
