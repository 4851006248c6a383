// README: Base handler utilities (JSON helpers, error mapping, response shapes).
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"haul/internal/http/middleware"
	"haul/internal/maps"
	"haul/internal/modules/booking"
	"haul/internal/modules/dispatch"
	"haul/internal/modules/driver"
	"haul/internal/modules/location"
	"haul/internal/modules/pricing"
	"haul/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps service error kinds onto status codes. Invalid input
// wins over not-found: an unknown driver on a location update is both.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case isBadRequest(err):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, driver.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrNotAssigned):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrAlreadyClaimed),
		errors.Is(err, dispatch.ErrDriverUnavailable),
		errors.Is(err, driver.ErrExists):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, maps.ErrNoRoute):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, maps.ErrUpstreamUnavailable):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

var badRequestKinds = []error{
	types.ErrInvalidCoordinate,
	types.ErrUnknownVehicleClass,
	booking.ErrBadRequest,
	dispatch.ErrBadRequest,
	dispatch.ErrVehicleMismatch,
	dispatch.ErrNotYetOpen,
	driver.ErrBadRequest,
	location.ErrBadRequest,
	pricing.ErrBadRequest,
}

func isBadRequest(err error) bool {
	for _, kind := range badRequestKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// forbidUnlessDriver rejects callers that are not the driver they act as.
// It is a no-op when auth is disabled.
func forbidUnlessDriver(c *gin.Context, driverID types.ID) bool {
	if !middleware.AuthEnabled(c) {
		return false
	}
	if middleware.CallerRole(c) != middleware.RoleDriver || middleware.CallerUID(c) != string(driverID) {
		writeError(c, http.StatusForbidden, "caller may not act as this driver")
		return true
	}
	return false
}

// actingDriver resolves the driver id for driver routes: the token uid when
// auth is on, otherwise the driver_id field of the request.
func actingDriver(c *gin.Context, fromRequest string) (types.ID, bool) {
	if middleware.AuthEnabled(c) {
		if middleware.CallerRole(c) != middleware.RoleDriver {
			writeError(c, http.StatusForbidden, "driver role required")
			return "", false
		}
		uid := middleware.CallerUID(c)
		if fromRequest != "" && fromRequest != uid {
			writeError(c, http.StatusForbidden, "caller may not act as this driver")
			return "", false
		}
		return types.ID(uid), true
	}
	if strings.TrimSpace(fromRequest) == "" {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return "", false
	}
	return types.ID(fromRequest), true
}

type pointDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func toPointDTO(p types.Point) pointDTO {
	return pointDTO{Lat: p.Lat, Lng: p.Lng}
}

func (p pointDTO) point() types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

type moneyDTO struct {
	Amount   int64   `json:"amount"`
	Major    float64 `json:"major"`
	Currency string  `json:"currency"`
}

func toMoneyDTO(m types.Money) moneyDTO {
	return moneyDTO{Amount: m.Amount, Major: m.Major(), Currency: m.Currency}
}

type bookingResponse struct {
	ID                   types.ID           `json:"booking_id"`
	RiderID              types.ID           `json:"rider_id"`
	DriverID             *types.ID          `json:"driver_id,omitempty"`
	Pickup               pointDTO           `json:"pickup"`
	Dropoff              pointDTO           `json:"dropoff"`
	PickupAddress        string             `json:"pickup_address,omitempty"`
	DropoffAddress       string             `json:"dropoff_address,omitempty"`
	VehicleClass         types.VehicleClass `json:"vehicle_class"`
	DistanceMeters       float64            `json:"distance_meters"`
	EstimatedCost        moneyDTO           `json:"estimated_cost"`
	EstimatedDurationSec int64              `json:"estimated_duration_sec"`
	Status               booking.Status     `json:"status"`
	StatusVersion        int                `json:"status_version"`
	PaymentStatus        string             `json:"payment_status"`
	ScheduledAt          *time.Time         `json:"scheduled_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	AcceptedAt           *time.Time         `json:"accepted_at,omitempty"`
	DeliveredAt          *time.Time         `json:"delivered_at,omitempty"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

func toBookingResponse(b *booking.Booking) bookingResponse {
	return bookingResponse{
		ID:                   b.ID,
		RiderID:              b.RiderID,
		DriverID:             b.DriverID,
		Pickup:               toPointDTO(b.Pickup),
		Dropoff:              toPointDTO(b.Dropoff),
		PickupAddress:        b.PickupAddress,
		DropoffAddress:       b.DropoffAddress,
		VehicleClass:         b.VehicleClass,
		DistanceMeters:       b.DistanceMeters,
		EstimatedCost:        toMoneyDTO(b.EstimatedCost),
		EstimatedDurationSec: b.EstimatedDurationSec,
		Status:               b.Status,
		StatusVersion:        b.StatusVersion,
		PaymentStatus:        string(b.PaymentStatus),
		ScheduledAt:          b.ScheduledAt,
		CreatedAt:            b.CreatedAt,
		AcceptedAt:           b.AcceptedAt,
		DeliveredAt:          b.DeliveredAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

func toBookingResponses(bs []*booking.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingResponse(b))
	}
	return out
}

type driverResponse struct {
	ID               types.ID           `json:"driver_id"`
	Name             string             `json:"name"`
	VehicleNumber    string             `json:"vehicle_number"`
	VehicleClass     types.VehicleClass `json:"vehicle_class"`
	Position         pointDTO           `json:"position"`
	Available        bool               `json:"available"`
	CurrentBookingID *types.ID          `json:"current_booking_id,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func toDriverResponse(d *driver.Driver) driverResponse {
	return driverResponse{
		ID:               d.ID,
		Name:             d.Name,
		VehicleNumber:    d.VehicleNumber,
		VehicleClass:     d.VehicleClass,
		Position:         toPointDTO(d.Position),
		Available:        d.Available,
		CurrentBookingID: d.CurrentBookingID,
		UpdatedAt:        d.UpdatedAt,
	}
}
