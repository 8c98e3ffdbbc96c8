package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roach88/vacc/internal/channels"
	"github.com/roach88/vacc/internal/engine"
	"github.com/roach88/vacc/internal/lattice"
)

// StatusSource reports the state of the running twin.
type StatusSource interface {
	Status() engine.Status
}

// History reads recorded cycles. *store.Store implements it.
type History interface {
	LatestRun(ctx context.Context) (lattice.RunRecord, error)
	ReadCycles(ctx context.Context, runID string, limit int) ([]lattice.CycleRecord, error)
	CycleStats(ctx context.Context, runID string) (total, failed int64, err error)
}

// Dependencies holds everything the handlers need. Host is required;
// Status and History are optional and their routes answer 503 when
// absent.
type Dependencies struct {
	Host    *channels.Server
	Status  StatusSource
	History History
	Logger  *slog.Logger
	Version string
}

// Handler serves the HTTP surface.
type Handler struct {
	host     *channels.Server
	status   StatusSource
	history  History
	logger   *slog.Logger
	version  string
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHandler builds a Handler from deps.
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		host:    deps.Host,
		status:  deps.Status,
		history: deps.History,
		logger:  logger,
		version: deps.Version,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		now: time.Now,
	}
}

// New returns an echo instance with middleware and every route
// registered.
func New(deps Dependencies) *echo.Echo {
	h := NewHandler(deps)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(h.logger)

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 * 1024,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			h.logger.Debug("request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	RegisterRoutes(e, h)
	return e
}

// RegisterRoutes registers every route on e.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.HandleHealth)

	g := e.Group("/api")
	g.GET("/status", h.HandleStatus)
	g.GET("/channels", h.HandleListChannels)
	g.GET("/channels/:name", h.HandleGetChannel)
	g.PUT("/channels/:name", h.HandlePutChannel)
	g.GET("/snapshot", h.HandleSnapshot)
	g.GET("/monitor", h.HandleMonitor)
	g.GET("/cycles", h.HandleCycles)
}
