package api

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/vacc/internal/channels"
	"github.com/roach88/vacc/internal/lattice"
	"github.com/roach88/vacc/internal/store"
)

const (
	defaultCycleLimit = 50
	maxCycleLimit     = 1000
)

// ChannelView is a channel definition with its current value.
type ChannelView struct {
	channels.Definition
	Value float64 `json:"value"`
}

// WriteRequest is the body of PUT /api/channels/:name.
type WriteRequest struct {
	Value *float64 `json:"value"`
}

// Snapshot is the msgpack body of GET /api/snapshot.
type Snapshot struct {
	RunID  string             `msgpack:"run_id"`
	Time   int64              `msgpack:"time"`
	Values map[string]float64 `msgpack:"values"`
}

// CyclesResponse is the body of GET /api/cycles.
type CyclesResponse struct {
	RunID  string                `json:"run_id"`
	Total  int64                 `json:"total"`
	Failed int64                 `json:"failed"`
	Cycles []lattice.CycleRecord `json:"cycles"`
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleStatus returns the runtime status.
func (h *Handler) HandleStatus(c echo.Context) error {
	if h.status == nil {
		return newUnavailableError("no runtime attached")
	}
	return c.JSON(http.StatusOK, h.status.Status())
}

// HandleListChannels returns every channel in publication order.
func (h *Handler) HandleListChannels(c echo.Context) error {
	values := h.host.Values()
	defs := h.host.Definitions()
	out := make([]ChannelView, 0, len(defs))
	for _, d := range defs {
		out = append(out, ChannelView{Definition: d, Value: values[d.Name]})
	}
	return c.JSON(http.StatusOK, out)
}

// HandleGetChannel returns one channel.
func (h *Handler) HandleGetChannel(c echo.Context) error {
	name, err := channelParam(c)
	if err != nil {
		return err
	}
	def, ok := h.host.Definition(name)
	if !ok {
		return newNotFoundError("channel", name)
	}
	v, err := h.host.Get(name)
	if err != nil {
		return channelError(name, err)
	}
	return c.JSON(http.StatusOK, ChannelView{Definition: def, Value: v})
}

// HandlePutChannel writes a setpoint as a control-system client.
func (h *Handler) HandlePutChannel(c echo.Context) error {
	name, err := channelParam(c)
	if err != nil {
		return err
	}
	var req WriteRequest
	if err := c.Bind(&req); err != nil {
		return newBadRequestError("invalid request body", err)
	}
	if req.Value == nil {
		return newBadRequestError("value is required", nil)
	}
	if math.IsNaN(*req.Value) || math.IsInf(*req.Value, 0) {
		return newBadRequestError("value must be finite", nil)
	}
	if err := h.host.Write(name, *req.Value); err != nil {
		return channelError(name, err)
	}
	h.logger.Info("channel written", "channel", name, "value", *req.Value)

	def, _ := h.host.Definition(name)
	return c.JSON(http.StatusOK, ChannelView{Definition: def, Value: *req.Value})
}

// HandleSnapshot returns every channel value, msgpack encoded.
func (h *Handler) HandleSnapshot(c echo.Context) error {
	snap := Snapshot{
		Time:   h.now().UnixMilli(),
		Values: h.host.Values(),
	}
	if h.status != nil {
		snap.RunID = h.status.Status().RunID
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return newInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleCycles returns recorded cycles of one run. The run defaults to
// the attached runtime's run, then to the latest recorded run.
func (h *Handler) HandleCycles(c echo.Context) error {
	if h.history == nil {
		return newUnavailableError("no history store attached")
	}

	limit := defaultCycleLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return newBadRequestError("limit must be a positive integer", err)
		}
		limit = min(n, maxCycleLimit)
	}

	ctx := c.Request().Context()
	runID := c.QueryParam("run")
	if runID == "" && h.status != nil {
		runID = h.status.Status().RunID
	}
	if runID == "" {
		run, err := h.history.LatestRun(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return newNotFoundError("run", "latest")
		}
		if err != nil {
			return newInternalError("failed to read runs", err)
		}
		runID = run.ID
	}

	cycles, err := h.history.ReadCycles(ctx, runID, limit)
	if err != nil {
		return newInternalError("failed to read cycles", err)
	}
	total, failed, err := h.history.CycleStats(ctx, runID)
	if err != nil {
		return newInternalError("failed to read cycle stats", err)
	}
	return c.JSON(http.StatusOK, CyclesResponse{
		RunID:  runID,
		Total:  total,
		Failed: failed,
		Cycles: cycles,
	})
}

func channelParam(c echo.Context) (string, error) {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil || name == "" {
		return "", newBadRequestError("invalid channel name", err)
	}
	return name, nil
}
