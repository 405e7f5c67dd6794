package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autodrive/internal/domain"
	"autodrive/internal/repository"
	"autodrive/internal/service"
)

// VehicleHandler handles HTTP requests for vehicles.
type VehicleHandler struct {
	vehicleService *service.VehicleService
}

// NewVehicleHandler creates a new VehicleHandler.
func NewVehicleHandler(vehicleService *service.VehicleService) *VehicleHandler {
	return &VehicleHandler{vehicleService: vehicleService}
}

// RegisterVehicleRequest is the HTTP request body for vehicle registration.
type RegisterVehicleRequest struct {
	DriverID string     `json:"driver_id,omitempty"` // Ignored when authenticated
	Model    string     `json:"model"`
	Seats    int        `json:"seats,omitempty"`
	Position *PointJSON `json:"position,omitempty"`
}

// UpdateLocationRequest is the HTTP request body for updating a vehicle position.
type UpdateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SetStatusRequest is the HTTP request body for taking a vehicle in or out of service.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// VehicleResponse is the HTTP response for vehicle data.
type VehicleResponse struct {
	ID              string     `json:"id"`
	DriverID        string     `json:"driver_id"`
	Model           string     `json:"model,omitempty"`
	Seats           int        `json:"seats,omitempty"`
	Position        *PointJSON `json:"position,omitempty"`
	Status          string     `json:"status"`
	Active          bool       `json:"active"`
	TotalTrips      int        `json:"total_trips"`
	TotalDistanceKm float64    `json:"total_distance_km"`
	TotalEarnings   int64      `json:"total_earnings"`
}

// AvailableVehicleResponse is a vehicle near the caller with its arrival estimate.
type AvailableVehicleResponse struct {
	VehicleResponse
	Location                PointJSON `json:"location"`
	DistanceKm              float64   `json:"distance_km"`
	EstimatedArrivalMinutes int       `json:"estimated_arrival_minutes"`
	Simulated               bool      `json:"simulated,omitempty"`
}

// Register handles POST /v1/vehicles
func (h *VehicleHandler) Register(c *gin.Context) {
	var req RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	driverID, err := callerID(c, domain.ActorDriver, req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	var position *domain.Point
	if req.Position != nil {
		p := req.Position.point()
		position = &p
	}

	vehicle, err := h.vehicleService.Register(c.Request.Context(), service.RegisterVehicleRequest{
		DriverID: driverID,
		Model:    req.Model,
		Seats:    req.Seats,
		Position: position,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, vehicleResponse(vehicle))
}

// GetAll handles GET /v1/vehicles
func (h *VehicleHandler) GetAll(c *gin.Context) {
	vehicles, err := h.vehicleService.List(c.Request.Context(), repository.VehicleFilter{
		DriverID:   c.Query("driver_id"),
		Status:     domain.VehicleStatus(c.Query("status")),
		ActiveOnly: c.Query("active") == "true",
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]VehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		response = append(response, vehicleResponse(v))
	}

	respondJSON(c, http.StatusOK, response)
}

// GetAvailable handles GET /v1/vehicles/available
func (h *VehicleHandler) GetAvailable(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		respondBadRequest(c, "invalid lat")
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		respondBadRequest(c, "invalid lng")
		return
	}

	q := service.AvailableQuery{Location: domain.Point{Lat: lat, Lng: lng}}
	if radius := c.Query("radius_km"); radius != "" {
		if q.RadiusKm, err = strconv.ParseFloat(radius, 64); err != nil {
			respondBadRequest(c, "invalid radius_km")
			return
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if q.Limit, err = strconv.Atoi(limit); err != nil {
			respondBadRequest(c, "invalid limit")
			return
		}
	}

	available, err := h.vehicleService.Available(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]AvailableVehicleResponse, 0, len(available))
	for _, a := range available {
		response = append(response, AvailableVehicleResponse{
			VehicleResponse:         vehicleResponse(a.Vehicle),
			Location:                pointJSON(a.Position),
			DistanceKm:              a.DistanceKm,
			EstimatedArrivalMinutes: a.ETAMinutes,
			Simulated:               a.Simulated,
		})
	}

	respondJSON(c, http.StatusOK, response)
}

// GetVehicle handles GET /v1/vehicles/:id
func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	vehicle, err := h.vehicleService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, vehicleResponse(vehicle))
}

// UpdateLocation handles POST /v1/vehicles/:id/location
func (h *VehicleHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	driverID, err := callerID(c, domain.ActorDriver, "")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.vehicleService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		VehicleID: c.Param("id"),
		DriverID:  driverID,
		Lat:       req.Lat,
		Lng:       req.Lng,
	}); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"message": "location updated"})
}

// SetStatus handles POST /v1/vehicles/:id/status
func (h *VehicleHandler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	driverID, err := callerID(c, domain.ActorDriver, "")
	if err != nil {
		respondError(c, err)
		return
	}

	vehicle, err := h.vehicleService.SetStatus(c.Request.Context(), c.Param("id"), driverID, domain.VehicleStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, vehicleResponse(vehicle))
}

func vehicleResponse(v *domain.Vehicle) VehicleResponse {
	r := VehicleResponse{
		ID:              v.ID,
		DriverID:        v.DriverID,
		Model:           v.Model,
		Seats:           v.Seats,
		Status:          string(v.Status),
		Active:          v.Active,
		TotalTrips:      v.Stats.TotalTrips,
		TotalDistanceKm: v.Stats.TotalDistanceKm,
		TotalEarnings:   v.Stats.TotalEarnings,
	}
	if v.Position != nil {
		p := pointJSON(*v.Position)
		r.Position = &p
	}
	return r
}
