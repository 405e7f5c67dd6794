package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"autodrive/internal/domain"
	"autodrive/internal/middleware"
	"autodrive/internal/repository"
	"autodrive/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// PointJSON is a coordinate in requests and responses.
type PointJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p PointJSON) point() domain.Point {
	return domain.Point{Lat: p.Lat, Lng: p.Lng}
}

func pointJSON(p domain.Point) PointJSON {
	return PointJSON{Lat: p.Lat, Lng: p.Lng}
}

// EstimateTripRequest is the HTTP request body for a trip estimate.
type EstimateTripRequest struct {
	Pickup         PointJSON `json:"pickup"`
	Dropoff        PointJSON `json:"dropoff"`
	PassengerCount int       `json:"passenger_count,omitempty"`
}

// CreateTripRequest is the HTTP request body for requesting a trip.
type CreateTripRequest struct {
	RiderID        string    `json:"rider_id,omitempty"` // Ignored when authenticated
	Pickup         PointJSON `json:"pickup"`
	Dropoff        PointJSON `json:"dropoff"`
	PickupAddress  string    `json:"pickup_address,omitempty"`
	DropoffAddress string    `json:"dropoff_address,omitempty"`
	PassengerCount int       `json:"passenger_count,omitempty"`
}

// RiderActionRequest is the HTTP request body for match and payment preparation.
type RiderActionRequest struct {
	RiderID string `json:"rider_id,omitempty"`
}

// AcceptTripRequest is the HTTP request body for accepting a trip.
type AcceptTripRequest struct {
	DriverID     string `json:"driver_id,omitempty"`
	VehicleID    string `json:"vehicle_id,omitempty"`
	ETAMinutes   int    `json:"eta_minutes,omitempty"`
	PaymentTxRef string `json:"payment_tx_ref"`
}

// DriverActionRequest is the HTTP request body for pickup and complete.
type DriverActionRequest struct {
	DriverID string `json:"driver_id,omitempty"`
}

// CancelTripRequest is the HTTP request body for cancelling a trip.
type CancelTripRequest struct {
	ActorID   string `json:"actor_id,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FareResponse is a fare breakdown in minor currency units.
type FareResponse struct {
	BaseFare        int64   `json:"base_fare"`
	DistanceFare    int64   `json:"distance_fare"`
	TimeFare        int64   `json:"time_fare"`
	Subtotal        int64   `json:"subtotal"`
	PlatformFee     int64   `json:"platform_fee"`
	Total           int64   `json:"total"`
	DriverAmount    int64   `json:"driver_amount"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
}

// EscrowResponse describes the locked payment of a trip.
type EscrowResponse struct {
	EscrowID     string `json:"escrow_id"`
	FundingTxRef string `json:"funding_tx_ref"`
	LockTxRef    string `json:"lock_tx_ref"`
	Amount       int64  `json:"amount"`
	LockedAt     string `json:"locked_at"`
}

// TripResponse is the HTTP response for trip operations.
type TripResponse struct {
	ID                 string          `json:"id"`
	RiderID            string          `json:"rider_id"`
	DriverID           string          `json:"driver_id,omitempty"`
	VehicleID          string          `json:"vehicle_id,omitempty"`
	Status             string          `json:"status"`
	Pickup             PointJSON       `json:"pickup"`
	Dropoff            PointJSON       `json:"dropoff"`
	PickupAddress      string          `json:"pickup_address,omitempty"`
	DropoffAddress     string          `json:"dropoff_address,omitempty"`
	PassengerCount     int             `json:"passenger_count"`
	DistanceKm         float64         `json:"distance_km"`
	EstimatedMinutes   int             `json:"estimated_minutes"`
	ActualMinutes      int             `json:"actual_minutes,omitempty"`
	DriverETAMinutes   int             `json:"driver_eta_minutes,omitempty"`
	Fare               FareResponse    `json:"fare"`
	Escrow             *EscrowResponse `json:"escrow,omitempty"`
	ReleaseTxRef       string          `json:"release_tx_ref,omitempty"`
	RefundTxRef        string          `json:"refund_tx_ref,omitempty"`
	RequestedAt        string          `json:"requested_at"`
	MatchedAt          string          `json:"matched_at,omitempty"`
	AcceptedAt         string          `json:"accepted_at,omitempty"`
	PickedUpAt         string          `json:"picked_up_at,omitempty"`
	CompletedAt        string          `json:"completed_at,omitempty"`
	CancelledAt        string          `json:"cancelled_at,omitempty"`
	CancelledBy        string          `json:"cancelled_by,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
}

// EstimateResponse is the HTTP response for a trip estimate.
type EstimateResponse struct {
	DistanceKm        float64      `json:"distance_km"`
	EstimatedMinutes  int          `json:"estimated_minutes"`
	Fare              FareResponse `json:"fare"`
	AvailableVehicles int          `json:"available_vehicles"`
	WaitMinutes       int          `json:"wait_minutes"`
}

// MatchResponse is the HTTP response for a matching attempt.
type MatchResponse struct {
	Matched    bool         `json:"matched"`
	Trip       TripResponse `json:"trip"`
	DistanceKm float64      `json:"distance_km,omitempty"`
}

// TransferResponse is the unsigned transfer a rider signs to fund the escrow.
type TransferResponse struct {
	TripID      string   `json:"trip_id"`
	Sender      string   `json:"sender"`
	Recipient   string   `json:"recipient"`
	Amount      int64    `json:"amount"`
	PlatformFee int64    `json:"platform_fee"`
	PackageID   string   `json:"package_id"`
	Module      string   `json:"module"`
	Function    string   `json:"function"`
	Arguments   []string `json:"arguments"`
	TypeArgs    []string `json:"type_arguments,omitempty"`
	GasBudget   int64    `json:"gas_budget"`
}

// ReceiptResponse is the receipt returned on completion.
type ReceiptResponse struct {
	ID              string       `json:"id"`
	PickupHash      string       `json:"pickup_hash"`
	DropoffHash     string       `json:"dropoff_hash"`
	DistanceKm      float64      `json:"distance_km"`
	DurationMinutes int          `json:"duration_minutes"`
	Fare            FareResponse `json:"fare"`
	EscrowID        string       `json:"escrow_id"`
	ReleaseTxRef    string       `json:"release_tx_ref"`
	LedgerReceiptID string       `json:"ledger_receipt_id,omitempty"`
	Text            string       `json:"text"`
}

// CompleteResponse is the HTTP response for completing a trip.
type CompleteResponse struct {
	Trip         TripResponse     `json:"trip"`
	Receipt      *ReceiptResponse `json:"receipt,omitempty"`
	ReceiptError string           `json:"receipt_error,omitempty"`
}

// Estimate handles POST /v1/trips/estimate
func (h *TripHandler) Estimate(c *gin.Context) {
	var req EstimateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	est, err := h.tripService.Estimate(c.Request.Context(), service.EstimateRequest{
		Pickup:         req.Pickup.point(),
		Dropoff:        req.Dropoff.point(),
		PassengerCount: req.PassengerCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, EstimateResponse{
		DistanceKm:        est.DistanceKm,
		EstimatedMinutes:  est.EstimatedMinutes,
		Fare:              fareResponse(est.Fare),
		AvailableVehicles: est.AvailableVehicles,
		WaitMinutes:       est.WaitMinutes,
	})
}

// CreateTrip handles POST /v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	riderID, err := callerID(c, domain.ActorRider, req.RiderID)
	if err != nil {
		respondError(c, err)
		return
	}

	trip, err := h.tripService.Create(c.Request.Context(), service.CreateTripRequest{
		RiderID:        riderID,
		Pickup:         req.Pickup.point(),
		Dropoff:        req.Dropoff.point(),
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		PassengerCount: req.PassengerCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, tripResponse(trip))
}

// GetAll handles GET /v1/trips
func (h *TripHandler) GetAll(c *gin.Context) {
	filter := repository.TripFilter{
		RiderID:  c.Query("rider_id"),
		DriverID: c.Query("driver_id"),
		Status:   domain.TripStatus(c.Query("status")),
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			respondBadRequest(c, "invalid limit")
			return
		}
		filter.Limit = n
	}

	// Authenticated callers only see their own trips.
	if actor, ok := middleware.ActorFrom(c); ok {
		switch actor.Role {
		case domain.ActorRider:
			filter.RiderID = actor.ID
		case domain.ActorDriver:
			filter.DriverID = actor.ID
		}
	}

	trips, err := h.tripService.ListTrips(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		response = append(response, tripResponse(trip))
	}

	respondJSON(c, http.StatusOK, response)
}

// GetActive handles GET /v1/trips/active
func (h *TripHandler) GetActive(c *gin.Context) {
	actorID, role := c.Query("rider_id"), domain.ActorRider
	if actorID == "" && c.Query("driver_id") != "" {
		actorID, role = c.Query("driver_id"), domain.ActorDriver
	}
	if actor, ok := middleware.ActorFrom(c); ok {
		actorID, role = actor.ID, actor.Role
	}

	trips, err := h.tripService.ActiveTrips(c.Request.Context(), actorID, role)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		response = append(response, tripResponse(trip))
	}

	respondJSON(c, http.StatusOK, response)
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.tripService.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if actor, ok := middleware.ActorFrom(c); ok && actor.ID != trip.RiderID && actor.ID != trip.DriverID {
		respondError(c, fmt.Errorf("%w: not a party to trip %s", service.ErrPermissionDenied, trip.ID))
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// MatchTrip handles POST /v1/trips/:id/match
func (h *TripHandler) MatchTrip(c *gin.Context) {
	var req RiderActionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	riderID, err := callerID(c, domain.ActorRider, req.RiderID)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.tripService.Match(c.Request.Context(), c.Param("id"), riderID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := MatchResponse{
		Matched: result.Matched,
		Trip:    tripResponse(result.Trip),
	}
	if result.Candidate != nil {
		response.DistanceKm = result.Candidate.DistanceKm
	}

	respondJSON(c, http.StatusOK, response)
}

// PreparePayment handles POST /v1/trips/:id/payment
func (h *TripHandler) PreparePayment(c *gin.Context) {
	var req RiderActionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	riderID, err := callerID(c, domain.ActorRider, req.RiderID)
	if err != nil {
		respondError(c, err)
		return
	}

	spec, err := h.tripService.PreparePayment(c.Request.Context(), c.Param("id"), riderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, TransferResponse{
		TripID:      spec.TripID,
		Sender:      spec.Sender,
		Recipient:   spec.Recipient,
		Amount:      spec.Amount,
		PlatformFee: spec.PlatformFee,
		PackageID:   spec.PackageID,
		Module:      spec.Module,
		Function:    spec.Function,
		Arguments:   spec.Arguments,
		TypeArgs:    spec.TypeArgs,
		GasBudget:   spec.GasBudget,
	})
}

// AcceptTrip handles POST /v1/trips/:id/accept
func (h *TripHandler) AcceptTrip(c *gin.Context) {
	var req AcceptTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	driverID, err := callerID(c, domain.ActorDriver, req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	trip, err := h.tripService.Accept(c.Request.Context(), service.AcceptTripRequest{
		TripID:       c.Param("id"),
		DriverID:     driverID,
		VehicleID:    req.VehicleID,
		ETAMinutes:   req.ETAMinutes,
		PaymentTxRef: req.PaymentTxRef,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// PickupPassenger handles POST /v1/trips/:id/pickup
func (h *TripHandler) PickupPassenger(c *gin.Context) {
	var req DriverActionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	driverID, err := callerID(c, domain.ActorDriver, req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	trip, err := h.tripService.Pickup(c.Request.Context(), c.Param("id"), driverID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// CompleteTrip handles POST /v1/trips/:id/complete
func (h *TripHandler) CompleteTrip(c *gin.Context) {
	var req DriverActionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	driverID, err := callerID(c, domain.ActorDriver, req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.tripService.Complete(c.Request.Context(), c.Param("id"), driverID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := CompleteResponse{
		Trip:         tripResponse(result.Trip),
		ReceiptError: result.ReceiptError,
	}
	if r := result.Receipt; r != nil {
		response.Receipt = &ReceiptResponse{
			ID:              r.ID,
			PickupHash:      r.PickupHash,
			DropoffHash:     r.DropoffHash,
			DistanceKm:      r.DistanceKm,
			DurationMinutes: r.DurationMinutes,
			Fare:            fareResponse(r.Fare),
			EscrowID:        r.EscrowID,
			ReleaseTxRef:    r.ReleaseTxRef,
			LedgerReceiptID: r.LedgerReceiptID,
			Text:            service.FormatReceipt(r),
		}
	}

	respondJSON(c, http.StatusOK, response)
}

// CancelTrip handles POST /v1/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	var req CancelTripRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	actorID, role := req.ActorID, domain.ActorRole(req.ActorRole)
	if actor, ok := middleware.ActorFrom(c); ok {
		actorID, role = actor.ID, actor.Role
	}

	trip, err := h.tripService.Cancel(c.Request.Context(), service.CancelTripRequest{
		TripID:    c.Param("id"),
		ActorID:   actorID,
		ActorRole: role,
		Reason:    req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// callerID returns the authenticated caller's ID, or fallback on an
// unauthenticated request. An authenticated caller with another role is denied.
func callerID(c *gin.Context, role domain.ActorRole, fallback string) (string, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return fallback, nil
	}
	if actor.Role != role {
		return "", fmt.Errorf("%w: %s role required", service.ErrPermissionDenied, role)
	}
	return actor.ID, nil
}

// bindOptionalJSON binds a JSON body that may be absent.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func tripResponse(trip *domain.Trip) TripResponse {
	r := TripResponse{
		ID:                 trip.ID,
		RiderID:            trip.RiderID,
		DriverID:           trip.DriverID,
		VehicleID:          trip.VehicleID,
		Status:             string(trip.Status),
		Pickup:             pointJSON(trip.Pickup),
		Dropoff:            pointJSON(trip.Dropoff),
		PickupAddress:      trip.PickupAddress,
		DropoffAddress:     trip.DropoffAddress,
		PassengerCount:     trip.PassengerCount,
		DistanceKm:         trip.DistanceKm,
		EstimatedMinutes:   trip.EstimatedMinutes,
		ActualMinutes:      trip.ActualMinutes,
		DriverETAMinutes:   trip.DriverETAMinutes,
		Fare:               fareResponse(trip.Fare),
		ReleaseTxRef:       trip.ReleaseTxRef,
		RefundTxRef:        trip.RefundTxRef,
		RequestedAt:        formatTime(trip.RequestedAt),
		MatchedAt:          formatTime(trip.MatchedAt),
		AcceptedAt:         formatTime(trip.AcceptedAt),
		PickedUpAt:         formatTime(trip.PickedUpAt),
		CompletedAt:        formatTime(trip.CompletedAt),
		CancelledAt:        formatTime(trip.CancelledAt),
		CancelledBy:        string(trip.CancelledBy),
		CancellationReason: trip.CancellationReason,
	}
	if e := trip.Escrow; e != nil {
		r.Escrow = &EscrowResponse{
			EscrowID:     e.EscrowID,
			FundingTxRef: e.FundingTxRef,
			LockTxRef:    e.LockTxRef,
			Amount:       e.Amount,
			LockedAt:     formatTime(e.LockedAt),
		}
	}
	return r
}

func fareResponse(f domain.FareBreakdown) FareResponse {
	return FareResponse{
		BaseFare:        f.BaseFare,
		DistanceFare:    f.DistanceFare,
		TimeFare:        f.TimeFare,
		Subtotal:        f.Subtotal,
		PlatformFee:     f.PlatformFee,
		Total:           f.Total,
		DriverAmount:    f.DriverAmount,
		DistanceKm:      f.DistanceKm,
		DurationMinutes: f.DurationMinutes,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
