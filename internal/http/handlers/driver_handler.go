// README: Driver handlers for registry, nearby preview and job listing.
package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"haul/internal/http/middleware"
	"haul/internal/modules/dispatch"
	"haul/internal/modules/driver"
	"haul/internal/types"
)

type DriverHandler struct {
	drivers  *driver.Service
	dispatch *dispatch.Service
}

func NewDriverHandler(driverSvc *driver.Service, dispatchSvc *dispatch.Service) *DriverHandler {
	return &DriverHandler{drivers: driverSvc, dispatch: dispatchSvc}
}

type registerDriverReq struct {
	ID            string    `json:"driver_id" binding:"required"`
	Name          string    `json:"name"`
	VehicleNumber string    `json:"vehicle_number"`
	VehicleClass  string    `json:"vehicle_class" binding:"required"`
	Position      *pointDTO `json:"position" binding:"required"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var req registerDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if forbidUnlessDriver(c, types.ID(req.ID)) {
		return
	}
	class, err := types.ParseVehicleClass(req.VehicleClass)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	d, err := h.drivers.Register(c.Request.Context(), driver.RegisterCommand{
		ID:            types.ID(req.ID),
		Name:          req.Name,
		VehicleNumber: req.VehicleNumber,
		VehicleClass:  class,
		Position:      req.Position.point(),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toDriverResponse(d))
}

func (h *DriverHandler) Get(c *gin.Context) {
	d, err := h.drivers.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDriverResponse(d))
}

// Nearby previews available drivers around a point for riders.
func (h *DriverHandler) Nearby(c *gin.Context) {
	q, ok := parseJobQuery(c)
	if !ok {
		return
	}
	ds, err := h.dispatch.NearbyDrivers(c.Request.Context(), q)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]driverResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDriverResponse(d))
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}

// Jobs lists claimable bookings around the driver, nearest first.
func (h *DriverHandler) Jobs(c *gin.Context) {
	if middleware.AuthEnabled(c) && middleware.CallerRole(c) != middleware.RoleDriver {
		writeError(c, http.StatusForbidden, "driver role required")
		return
	}
	q, ok := parseJobQuery(c)
	if !ok {
		return
	}
	bs, err := h.dispatch.FindAvailableJobs(c.Request.Context(), q)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": toBookingResponses(bs)})
}

func parseJobQuery(c *gin.Context) (dispatch.JobQuery, bool) {
	var q dispatch.JobQuery
	lat, err := floatQuery(c, "lat", true)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return q, false
	}
	lng, err := floatQuery(c, "lng", true)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return q, false
	}
	radius, err := floatQuery(c, "radius_m", false)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return q, false
	}
	class, err := types.ParseVehicleClass(c.Query("vehicle_class"))
	if err != nil {
		writeServiceError(c, err)
		return q, false
	}
	q.Position = types.Point{Lat: lat, Lng: lng}
	q.VehicleClass = class
	q.RadiusMeters = radius
	return q, true
}

func floatQuery(c *gin.Context, key string, required bool) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		if required {
			return 0, fmt.Errorf("missing %s", key)
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}
