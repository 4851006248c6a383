// README: Location handlers for driver position pings and reads.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"haul/internal/modules/location"
	"haul/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type updateLocationReq struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (h *LocationHandler) Update(c *gin.Context) {
	id := types.ID(c.Param("id"))
	// Only the authenticated driver may update their own location.
	if forbidUnlessDriver(c, id) {
		return
	}
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.location.UpdatePosition(c.Request.Context(), location.Update{
		DriverID: id,
		Position: types.Point{Lat: *req.Lat, Lng: *req.Lng},
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "driver": toDriverResponse(d)})
}

func (h *LocationHandler) Get(c *gin.Context) {
	id := types.ID(c.Param("id"))
	p, err := h.location.GetPosition(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driver_id": id, "position": toPointDTO(p)})
}
