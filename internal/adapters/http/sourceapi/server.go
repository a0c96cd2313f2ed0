// Package sourceapi exposes a remote.Source over HTTP: REST for reads and
// writes, a WebSocket stream for change notifications.
package sourceapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/okian/rostersync/internal/adapters/remote"
	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
	"github.com/okian/rostersync/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	readHeaderTimeout = 5 * time.Second
)

// Server serves a remote.Source.
type Server struct {
	src      remote.Source
	engine   *gin.Engine
	upgrader websocket.Upgrader
	log      logger.Logger
	srv      *http.Server
}

// ErrorBody is the JSON error envelope of every non-2xx response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds the server and its routes.
func New(src remote.Source, opts ...Option) *Server {
	s := &Server{
		src: src,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("sourceapi")

	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery(), s.observe())

	rest := e.Group("/rest")
	rest.GET("/:collection", s.handleSelect)
	rest.POST("/:collection", s.handleInsert)
	rest.PATCH("/:collection/:id", s.handleUpdate)
	rest.DELETE("/:collection/:id", s.handleDelete)
	e.GET("/realtime", s.handleRealtime)

	s.engine = e
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: readHeaderTimeout}
	s.log.Info(context.Background(), "source api listening", logger.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(route, c.Request.Method, status)
		metrics.RecordHTTPRequestDuration(route, c.Request.Method, status, float64(time.Since(start).Microseconds())/1000)
	}
}

func (s *Server) handleSelect(c *gin.Context) {
	asc, _ := strconv.ParseBool(c.Query("asc"))
	rows, err := s.src.Select(c.Request.Context(), c.Param("collection"), types.Order{
		Column:    c.Query("order"),
		Ascending: asc,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if rows == nil {
		rows = []types.Row{}
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleInsert(c *gin.Context) {
	var row types.Row
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Code: "bad_request", Message: err.Error()})
		return
	}
	if err := s.src.Insert(c.Request.Context(), c.Param("collection"), row); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var patch types.Row
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Code: "bad_request", Message: err.Error()})
		return
	}
	if err := s.src.Update(c.Request.Context(), c.Param("collection"), c.Param("id"), patch); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.src.Delete(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(c.Request.Context(), "source call failed", logger.String("path", c.Request.URL.Path), logger.Error(err))
		metrics.RecordErrorByEndpoint(c.FullPath(), c.Request.Method, code)
	}
	c.JSON(status, ErrorBody{Code: code, Message: err.Error()})
}

// classify maps a source error to its HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, remote.ErrUnknownCollection):
		return http.StatusNotFound, CodeUnknownCollection
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, remote.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, remote.ErrMissingID):
		return http.StatusBadRequest, CodeMissingID
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// Error codes shared with clients of this API.
const (
	CodeUnknownCollection = "unknown_collection"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeMissingID         = "missing_id"
)
