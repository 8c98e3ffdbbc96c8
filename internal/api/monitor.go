package api

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/vacc/internal/channels"
)

const monitorWriteWait = 5 * time.Second

// HandleMonitor streams channel updates over a websocket. Each update is
// a JSON text message, or a msgpack binary message with ?format=msgpack.
// With ?initial=true the current value of every channel is sent first.
func (h *Handler) HandleMonitor(c echo.Context) error {
	binary := c.QueryParam("format") == "msgpack"

	// Subscribe before the handshake completes so a client sees every
	// change made after its dial returns.
	sub := h.host.Monitor()
	defer sub.Close()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// The client only sends control frames; a read error means it left.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("monitor connected", "remote", c.RealIP())

	if c.QueryParam("initial") == "true" {
		now := h.now()
		for _, d := range h.host.Definitions() {
			v, err := h.host.Get(d.Name)
			if err != nil {
				continue
			}
			if err := h.send(ws, binary, channels.Update{Name: d.Name, Value: v, Time: now}); err != nil {
				return nil
			}
		}
	}

	for {
		u, err := sub.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, channels.ErrSubscriptionClosed):
				h.closeMonitor(ws, websocket.CloseGoingAway, "host closed")
			case errors.Is(err, channels.ErrSubscriptionOverflow):
				h.logger.Warn("monitor dropped, backlog exceeded", "remote", c.RealIP())
				h.closeMonitor(ws, websocket.CloseTryAgainLater, "backlog exceeded")
			}
			h.logger.Debug("monitor disconnected", "remote", c.RealIP(), "reason", err)
			return nil
		}
		if err := h.send(ws, binary, u); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("monitor write failed", "error", err)
			}
			return nil
		}
	}
}

func (h *Handler) closeMonitor(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(monitorWriteWait))
}

func (h *Handler) send(ws *websocket.Conn, binary bool, u channels.Update) error {
	if err := ws.SetWriteDeadline(time.Now().Add(monitorWriteWait)); err != nil {
		return err
	}
	if !binary {
		return ws.WriteJSON(u)
	}
	data, err := msgpack.Marshal(u)
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.BinaryMessage, data)
}
