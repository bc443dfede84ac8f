package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"appliance-monitor/internal/device"
	"appliance-monitor/internal/mqtt"

	"github.com/gin-gonic/gin"
)

// Server exposes every device's status, session history and the reset and
// switch operations over HTTP.
type Server struct {
	router  *gin.Engine
	server  *http.Server
	devices *device.Manager
	broker  *mqtt.Client
	port    int
}

type ServerConfig struct {
	Port    int
	Devices *device.Manager
	Broker  *mqtt.Client
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		devices: cfg.Devices,
		broker:  cfg.Broker,
		port:    cfg.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api/v1")
	{
		api.GET("/devices", s.devicesHandler)
		api.GET("/devices/:name", s.deviceHandler)
		api.GET("/devices/:name/history", s.historyHandler)
		api.POST("/devices/:name/reset", s.resetAllHandler)
		api.POST("/devices/:name/reset-today", s.resetTodayHandler)
		api.POST("/devices/:name/switch", s.switchHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"devices":        len(s.devices.Names()),
		"mqtt_connected": s.broker.IsConnected(),
		"timestamp":      time.Now(),
	})
}

func (s *Server) devicesHandler(c *gin.Context) {
	type deviceSummary struct {
		Name  string `json:"name"`
		State string `json:"state"`
		Mode  string `json:"mode"`
	}

	summaries := make([]deviceSummary, 0, len(s.devices.Names()))
	for _, name := range s.devices.Names() {
		runner, ok := s.devices.Get(name)
		if !ok {
			continue
		}
		st, ok := runner.Status()
		if !ok {
			continue
		}
		summaries = append(summaries, deviceSummary{
			Name:  st.Name,
			State: string(st.State),
			Mode:  string(st.Mode),
		})
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) deviceHandler(c *gin.Context) {
	runner, ok := s.devices.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}
	st, ok := runner.Status()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device not running"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) historyHandler(c *gin.Context) {
	runner, ok := s.devices.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}

	fromStr := c.Query("from")
	toStr := c.Query("to")
	limitStr := c.DefaultQuery("limit", "100")

	var limit int
	fmt.Sscanf(limitStr, "%d", &limit)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
			return
		}

		sessions, err := runner.SessionsByRange(from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sessions)
		return
	}

	sessions, err := runner.Sessions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) resetAllHandler(c *gin.Context) {
	runner, ok := s.devices.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}
	if err := runner.ResetAllCounters(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) resetTodayHandler(c *gin.Context) {
	runner, ok := s.devices.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}
	runner.ResetTodayCounters()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) switchHandler(c *gin.Context) {
	runner, ok := s.devices.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}

	var body struct {
		On *bool `json:"on"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.On == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"on\": true|false}"})
		return
	}

	if err := runner.SetSwitch(*body.On); err != nil {
		if errors.Is(err, device.ErrScheduleBlocked) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		// Switch commands are not retried; the failure is the caller's to
		// handle.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
