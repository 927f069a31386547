package api

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	echo "github.com/labstack/echo/v5"

	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// wsWriteTimeout bounds a single snapshot push, following
// ConnectionManager's sendRaw write-timeout pattern.
const wsWriteTimeout = 5 * time.Second

// progressWSHandler upgrades to WebSocket and streams scanID's snapshots
// as they're published by the fanout Hub, one JSON frame per snapshot,
// per spec.md §6. The socket closes once a terminal snapshot has been
// sent or the client disconnects.
func (s *Server) progressWSHandler(c *echo.Context) error {
	scanID := c.Param("id")

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	sub := s.hub.Subscribe(scanID)
	defer s.hub.Unsubscribe(sub)

	ctx := c.Request().Context()

	// Send the current snapshot immediately so a client that connects
	// after every event already happened still sees the scan's state.
	if rec, err := s.service.Snapshot(ctx, scanID); err == nil {
		if sendErr := writeSnapshot(ctx, conn, rec); sendErr != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
		if rec.Status.Terminal() {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}

	for {
		select {
		case snap, ok := <-sub.Snapshots():
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			if snap.Status.Terminal() {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, rec scanmodel.ScanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
