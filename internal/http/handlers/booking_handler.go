// README: Booking handlers for create/get/list/claim/advance.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"haul/internal/http/middleware"
	"haul/internal/modules/booking"
	"haul/internal/modules/dispatch"
	"haul/internal/modules/pricing"
	"haul/internal/types"
)

type BookingHandler struct {
	bookings *booking.Service
	dispatch *dispatch.Service
}

func NewBookingHandler(bookings *booking.Service, dispatchSvc *dispatch.Service) *BookingHandler {
	return &BookingHandler{bookings: bookings, dispatch: dispatchSvc}
}

type createBookingReq struct {
	RiderID        string     `json:"rider_id"`
	Pickup         *pointDTO  `json:"pickup" binding:"required"`
	Dropoff        *pointDTO  `json:"dropoff" binding:"required"`
	PickupAddress  string     `json:"pickup_address"`
	DropoffAddress string     `json:"dropoff_address"`
	VehicleClass   string     `json:"vehicle_class" binding:"required"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

type quoteResponse struct {
	Total       moneyDTO           `json:"total"`
	Amount      float64            `json:"amount"`
	DurationSec int64              `json:"duration_sec"`
	Breakdown   map[string]float64 `json:"breakdown"`
}

func toQuoteResponse(q pricing.Quote) quoteResponse {
	return quoteResponse{
		Total:       toMoneyDTO(q.Total),
		Amount:      q.Amount,
		DurationSec: int64(q.Duration / time.Second),
		Breakdown:   q.Breakdown,
	}
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	riderID := req.RiderID
	if middleware.AuthEnabled(c) {
		if middleware.CallerRole(c) != middleware.RoleRider {
			writeError(c, http.StatusForbidden, "rider role required")
			return
		}
		if riderID != "" && riderID != middleware.CallerUID(c) {
			writeError(c, http.StatusForbidden, "caller may not book for another rider")
			return
		}
		riderID = middleware.CallerUID(c)
	}
	class, err := types.ParseVehicleClass(req.VehicleClass)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	created, err := h.bookings.Create(c.Request.Context(), booking.CreateCommand{
		RiderID:        types.ID(riderID),
		Pickup:         req.Pickup.point(),
		Dropoff:        req.Dropoff.point(),
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		VehicleClass:   class,
		ScheduledAt:    req.ScheduledAt,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"booking": toBookingResponse(created.Booking),
		"quote":   toQuoteResponse(created.Quote),
	})
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) List(c *gin.Context) {
	var f booking.ListFilter
	if raw := c.Query("status"); raw != "" {
		s, err := booking.ParseStatus(raw)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		f.Status = s
	}
	if raw := c.Query("unassigned"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid unassigned flag")
			return
		}
		f.UnassignedOnly = v
	}
	bs, err := h.bookings.List(c.Request.Context(), f)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": toBookingResponses(bs)})
}

type driverActionReq struct {
	DriverID string `json:"driver_id"`
	Status   string `json:"status"`
}

// bindOptionalJSON tolerates an empty body; driver routes may rely on the token alone.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (h *BookingHandler) Claim(c *gin.Context) {
	var req driverActionReq
	if !bindOptionalJSON(c, &req) {
		return
	}
	driverID, ok := actingDriver(c, req.DriverID)
	if !ok {
		return
	}
	b, err := h.dispatch.Claim(c.Request.Context(), dispatch.ClaimCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  driverID,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Advance(c *gin.Context) {
	var req driverActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	status, err := booking.ParseStatus(req.Status)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	driverID := types.ID(req.DriverID)
	if middleware.AuthEnabled(c) {
		id, ok := actingDriver(c, req.DriverID)
		if !ok {
			return
		}
		driverID = id
	}
	b, err := h.bookings.Advance(c.Request.Context(), booking.AdvanceCommand{
		BookingID: types.ID(c.Param("id")),
		Status:    status,
		DriverID:  driverID,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}
