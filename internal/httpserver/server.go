// Package httpserver exposes the fleet analytics over HTTP: health,
// per-vehicle aggregates, the risk ranking, and Prometheus metrics.
// Aggregation and scoring run against the live summary store on each
// request, so the API always reflects the latest completed appends.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rotormetrics/prophet/internal/aggregate"
	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/risk"
	"github.com/rotormetrics/prophet/internal/vehicle"
)

// SummaryReader is the narrow store contract required by the HTTP API.
type SummaryReader interface {
	Summaries(ctx context.Context) ([]model.LogSummary, error)
	Identifiers(ctx context.Context) ([]string, error)
}

// Server serves the analytics API.
type Server struct {
	addr      string
	store     SummaryReader
	dead      *vehicle.DeadList
	gatherer  prometheus.Gatherer
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates the API server. dead may be nil; gatherer may be nil to
// use the default registry.
func NewServer(addr string, store SummaryReader, dead *vehicle.DeadList, gatherer prometheus.Gatherer) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     addr,
		store:    store,
		dead:     dead,
		gatherer: gatherer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:           s.router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/vehicles", s.handleVehicles)
	r.GET("/api/risk", s.handleRisk)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	ids, err := s.store.Identifiers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read summary store"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).String(),
		"log_count": len(ids),
	})
}

type vehicleResponse struct {
	VehicleID        string                           `json:"vehicle_id"`
	LogCount         int64                            `json:"num_logs"`
	FlightTimeMin    float64                          `json:"flight_time_min"`
	VibrationBinS    [model.NumVibrationBins]float64  `json:"accel_bin_time_s"`
	VibrationShares  [model.NumVibrationBins]float64  `json:"accel_bin_share"`
	Motors           [model.NumMotors]motorResponse   `json:"motors"`
	PeakAccelEvents  int64                            `json:"peak_accel_events"`
	ClippingEvents   int64                            `json:"accel_clipping_events"`
	ClippingTimeS    float64                          `json:"accel_clipping_time_s"`
}

type motorResponse struct {
	Above080S float64 `json:"time_above_0_8_s"`
	Above090S float64 `json:"time_above_0_9_s"`
	Above100S float64 `json:"time_above_1_0_s"`
}

func (s *Server) handleVehicles(c *gin.Context) {
	aggs, err := s.aggregates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate summaries"})
		return
	}
	out := make([]vehicleResponse, 0, len(aggs))
	for i := range aggs {
		a := &aggs[i]
		v := vehicleResponse{
			VehicleID:       a.VehicleID,
			LogCount:        a.LogCount,
			FlightTimeMin:   a.DurationTrackedS / 60,
			VibrationBinS:   a.VibrationBinS,
			PeakAccelEvents: a.PeakAccelCount,
			ClippingEvents:  a.ClipCount,
			ClippingTimeS:   a.ClipDurationS,
		}
		for b := 0; b < model.NumVibrationBins; b++ {
			v.VibrationShares[b] = a.VibrationShare(b)
		}
		for m := 0; m < model.NumMotors; m++ {
			v.Motors[m] = motorResponse{
				Above080S: a.Motors[m].Above080S,
				Above090S: a.Motors[m].Above090S,
				Above100S: a.Motors[m].Above100S,
			}
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": out})
}

type riskResponse struct {
	VehicleID         string  `json:"vehicle_id"`
	Rank              int     `json:"rank"`
	Dead              bool    `json:"dead"`
	CompositeScore    float64 `json:"risk_score"`
	FatigueScore      float64 `json:"fatigue_score"`
	MotorScore        float64 `json:"motor_score"`
	VibrationScore    float64 `json:"vibration_score"`
	PeakEventsPerHour float64 `json:"peak_events_per_hour"`
	ClipEventsPerHour float64 `json:"clipping_events_per_hour"`
	FlightTimeMin     float64 `json:"flight_time_min"`
	LogCount          int64   `json:"num_logs"`
}

func (s *Server) handleRisk(c *gin.Context) {
	aggs, err := s.aggregates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate summaries"})
		return
	}
	recs := risk.Rank(aggs, s.dead)
	out := make([]riskResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, riskResponse{
			VehicleID:         r.VehicleID,
			Rank:              r.Rank,
			Dead:              r.Dead,
			CompositeScore:    r.CompositeScore,
			FatigueScore:      r.FatigueScore,
			MotorScore:        r.MotorScore,
			VibrationScore:    r.VibrationScore,
			PeakEventsPerHour: r.PeakEventsPerHour,
			ClipEventsPerHour: r.ClipEventsPerHour,
			FlightTimeMin:     r.FlightTimeMin,
			LogCount:          r.LogCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rankings": out})
}

func (s *Server) aggregates(ctx context.Context) ([]model.VehicleAggregate, error) {
	sums, err := s.store.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.ByVehicle(sums), nil
}
