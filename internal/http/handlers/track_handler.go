// README: Booking tracking over websocket: a snapshot, then live lifecycle and driver position events.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"haul/internal/events"
	"haul/internal/http/middleware"
	"haul/internal/modules/booking"
	"haul/internal/types"
)

const (
	trackPongWait   = 60 * time.Second
	trackPingPeriod = 30 * time.Second
	trackWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// Origins are enforced by the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type TrackHandler struct {
	bookings *booking.Service
	hub      *events.Hub
	logger   *slog.Logger
}

func NewTrackHandler(bookings *booking.Service, hub *events.Hub, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{bookings: bookings, hub: hub, logger: logger}
}

type trackMessage struct {
	Type    string           `json:"type"`
	Booking *bookingResponse `json:"booking,omitempty"`
	Event   *events.Event    `json:"event,omitempty"`
}

func (h *TrackHandler) Track(c *gin.Context) {
	ctx := c.Request.Context()
	id := types.ID(c.Param("id"))

	// Subscribe before the snapshot read so no transition falls in between.
	sub := h.hub.Subscribe(events.BookingTopic(id))
	defer sub.Close()

	b, err := h.bookings.Get(ctx, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !mayTrack(c, b) {
		writeError(c, http.StatusForbidden, "caller may not track this booking")
		return
	}
	if b.DriverID != nil {
		sub.Add(events.DriverTopic(*b.DriverID))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "booking_id", id, "error", err)
		return
	}
	defer conn.Close()

	snapshot := toBookingResponse(b)
	if err := writeMessage(conn, trackMessage{Type: "snapshot", Booking: &snapshot}); err != nil {
		return
	}
	if b.Status.Terminal() {
		closeNormal(conn)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(trackPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(trackPongWait))
	})
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(trackPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(trackWriteWait)); err != nil {
				return
			}
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if e.Type == events.BookingClaimed && e.DriverID != "" {
				sub.Add(events.DriverTopic(e.DriverID))
			}
			if err := writeMessage(conn, trackMessage{Type: "event", Event: &e}); err != nil {
				h.logger.Debug("tracking client write failed", "booking_id", id, "error", err)
				return
			}
			if e.Type == events.BookingStatusChanged && e.BookingID == id && e.Status == string(booking.StatusDelivered) {
				closeNormal(conn)
				return
			}
		}
	}
}

// mayTrack admits the booking's rider and its assigned driver when auth is on.
func mayTrack(c *gin.Context, b *booking.Booking) bool {
	if !middleware.AuthEnabled(c) {
		return true
	}
	uid := types.ID(middleware.CallerUID(c))
	return uid == b.RiderID || b.AssignedTo(uid)
}

func writeMessage(conn *websocket.Conn, msg trackMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(trackWriteWait))
	return conn.WriteJSON(msg)
}

func closeNormal(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "booking delivered"),
		time.Now().Add(trackWriteWait))
}
