// Package api exposes the classification cache over a read-only HTTP API.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Xxx-Bin/zardaxt/internal/osfp"
	"github.com/Xxx-Bin/zardaxt/internal/session"
	"github.com/Xxx-Bin/zardaxt/internal/sniffer"
)

// Cache is the read side of the session cache.
type Cache interface {
	Classification(ip string) (osfp.Classification, bool)
	Classifications() map[string]osfp.Classification
	Stats() session.Stats
}

// Options wires the API to the running sniffer.
type Options struct {
	Cache        Cache
	DBSize       int                  // entries in the reference database, 0 when classification is off
	Capture      func() sniffer.Stats // optional
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Log          logrus.FieldLogger
}

// Server serves the API on one listener.
type Server struct {
	http *http.Server
	log  logrus.FieldLogger
}

type statsResponse struct {
	Session  session.Stats  `json:"session"`
	Database int            `json:"database_entries"`
	Capture  *sniffer.Stats `json:"capture,omitempty"`
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Log != nil {
		r.Use(requestLogger(opts.Log))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/classifications", func(c *gin.Context) {
		c.JSON(http.StatusOK, opts.Cache.Classifications())
	})

	r.GET("/classifications/:ip", func(c *gin.Context) {
		ip := c.Param("ip")
		if net.ParseIP(ip) == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid IP address"})
			return
		}
		cls, ok := opts.Cache.Classification(ip)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no classification for " + ip})
			return
		}
		c.JSON(http.StatusOK, cls)
	})

	r.GET("/stats", func(c *gin.Context) {
		resp := statsResponse{
			Session:  opts.Cache.Stats(),
			Database: opts.DBSize,
		}
		if opts.Capture != nil {
			st := opts.Capture()
			resp.Capture = &st
		}
		c.JSON(http.StatusOK, resp)
	})

	return r
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("api request")
	}
}

// NewServer returns a server for addr. Call ListenAndServe to start it.
func NewServer(addr string, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	opts.Log = log.WithField("component", "api")
	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(opts),
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		log: opts.Log,
	}
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.log.Infof("API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
