// Package ingress is the HTTP surface: the phone-system webhook plus the
// admin routes the dashboard reads and edits through.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"callfeedback/internal/logger"
	"callfeedback/internal/pipeline"
)

const (
	maxBodyBytes           = 1 << 20
	defaultPipelineTimeout = 10 * time.Minute
)

// Dispatcher runs a decoded delivery.
type Dispatcher interface {
	ProcessEvent(ctx context.Context, ev pipeline.Event) (processed, failed int)
}

type Options struct {
	Dispatcher      Dispatcher
	Admin           AdminStore
	Blobs           Blobs
	PipelineTimeout time.Duration
}

type Server struct {
	dispatcher Dispatcher
	admin      AdminStore
	blobs      Blobs
	timeout    time.Duration
	inflight   sync.WaitGroup
}

func New(opts Options) *Server {
	timeout := opts.PipelineTimeout
	if timeout <= 0 {
		timeout = defaultPipelineTimeout
	}
	return &Server{
		dispatcher: opts.Dispatcher,
		admin:      opts.Admin,
		blobs:      opts.Blobs,
		timeout:    timeout,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.New().WithRequest(c.Request).WithField("panic", fmt.Sprint(rec)).Error("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/webhook", s.handleWebhook)

	if s.admin != nil {
		s.registerAdmin(r)
	}
	return r
}

// Wait blocks until every dispatched delivery has finished.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) handleWebhook(c *gin.Context) {
	log := logger.New().WithRequest(c.Request).WithField("handler", "webhook")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.WithField("error", err.Error()).Error("read webhook body")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read body"})
		return
	}
	ev, err := DecodeEnvelope(body)
	if err != nil {
		if errors.Is(err, ErrBadEnvelope) {
			log.WithField("error", err.Error()).Warn("rejected webhook envelope")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithField("error", err.Error()).Error("decode webhook")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	log = log.WithFields(logrus.Fields{"event": ev.Name, "message_id": ev.MessageID})

	if !IsRecordingEvent(ev.Name) {
		log.Info("ignoring event")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if len(ev.Recordings) > 0 && s.dispatcher != nil {
		s.dispatch(c.Request.Context(), ev, log)
	}
	log.WithField("recordings", len(ev.Recordings)).Info("webhook received")
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// dispatch runs the delivery in the background. The run outlives the HTTP
// request but is bounded by the pipeline timeout.
func (s *Server) dispatch(reqCtx context.Context, ev pipeline.Event, log *logrus.Entry) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(logrus.Fields{
					"panic": fmt.Sprint(rec),
					"stack": string(debug.Stack()),
				}).Error("pipeline panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), s.timeout)
		defer cancel()
		processed, failed := s.dispatcher.ProcessEvent(ctx, ev)
		if failed > 0 {
			log.WithFields(logrus.Fields{"processed": processed, "failed": failed}).Warn("delivery finished with failures")
		}
	}()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" {
			return
		}
		logger.New().WithRequest(c.Request).WithFields(logrus.Fields{
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request served")
	}
}
