// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer. Authentication lives in
// front of this service; the acting user arrives in headers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/scheduler"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/service"
)

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// LifecycleHandler holds all HTTP handlers for the lifecycle API.
type LifecycleHandler struct {
	events        *service.EventService
	registrations *service.RegistrationService
	payments      *service.PaymentService
	sched         *scheduler.Scheduler
}

// NewLifecycleHandler constructs a LifecycleHandler.
func NewLifecycleHandler(events *service.EventService, registrations *service.RegistrationService,
	payments *service.PaymentService, sched *scheduler.Scheduler) *LifecycleHandler {
	return &LifecycleHandler{
		events:        events,
		registrations: registrations,
		payments:      payments,
		sched:         sched,
	}
}

// Routes mounts all API routes on a chi router.
func (h *LifecycleHandler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/{id}", h.GetEvent)
		r.Patch("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Post("/{id}/transition", h.TransitionEvent)
		r.Post("/{id}/approval", h.SetApproval)
		r.Post("/{id}/rounds", h.AddRound)
		r.Post("/{id}/register", h.Register)
		r.Post("/{id}/register-team", h.RegisterTeam)
	})
	r.Route("/registrations", func(r chi.Router) {
		r.Post("/{id}/cancel", h.CancelRegistration)
		r.Post("/{id}/payments", h.InitiatePayment)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Post("/{id}/settlement", h.ConfirmSettlement)
		r.Post("/{id}/refunds", h.RequestRefund)
	})
	r.Route("/refunds", func(r chi.Router) {
		r.Post("/{id}/approve", h.ApproveRefund)
		r.Post("/{id}/reject", h.RejectRefund)
	})
	r.Post("/admin/sweep", h.RunSweep)
}

// Helper utilities.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// actorFrom reads the authenticated user that upstream middleware attached.
func actorFrom(r *http.Request) service.Actor {
	role := model.Role(r.Header.Get("X-User-Role"))
	if role == "" {
		role = model.RoleParticipant
	}
	return service.Actor{ID: r.Header.Get("X-User-ID"), Role: role}
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	var cerr *model.ConflictError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Fields: verr.Fields})
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, cerr.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Events.

type createEventRequest struct {
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Type                 string    `json:"type"`
	RegistrationDeadline time.Time `json:"registration_deadline"`
	StartDateTime        time.Time `json:"start_date_time"`
	EndDateTime          time.Time `json:"end_date_time"`
	MaxParticipants      *int      `json:"max_participants"`
	IsPaid               bool      `json:"is_paid"`
	Amount               float64   `json:"amount"`
	MinTeamSize          int       `json:"min_team_size"`
	MaxTeamSize          int       `json:"max_team_size"`
	Eligibility          []string  `json:"eligibility"`
	RequiresApproval     bool      `json:"requires_approval"`
}

// CreateEvent handles POST /events
func (h *LifecycleHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	e, err := h.events.CreateEvent(r.Context(), actorFrom(r), service.CreateEventInput{
		Title:                req.Title,
		Description:          req.Description,
		Type:                 req.Type,
		RegistrationDeadline: req.RegistrationDeadline,
		StartDateTime:        req.StartDateTime,
		EndDateTime:          req.EndDateTime,
		MaxParticipants:      req.MaxParticipants,
		IsPaid:               req.IsPaid,
		Amount:               req.Amount,
		MinTeamSize:          req.MinTeamSize,
		MaxTeamSize:          req.MaxTeamSize,
		Eligibility:          req.Eligibility,
		RequiresApproval:     req.RequiresApproval,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetEvent handles GET /events/{id}
func (h *LifecycleHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type updateEventRequest struct {
	Title                *string    `json:"title"`
	Description          *string    `json:"description"`
	Type                 *string    `json:"type"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	StartDateTime        *time.Time `json:"start_date_time"`
	EndDateTime          *time.Time `json:"end_date_time"`
	MaxParticipants      *int       `json:"max_participants"`
	MinTeamSize          *int       `json:"min_team_size"`
	MaxTeamSize          *int       `json:"max_team_size"`
	IsPaid               *bool      `json:"is_paid"`
	Amount               *float64   `json:"amount"`
	Eligibility          []string   `json:"eligibility"`
	RequiresApproval     *bool      `json:"requires_approval"`
}

// UpdateEvent handles PATCH /events/{id}
func (h *LifecycleHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req updateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	e, err := h.events.UpdateEvent(r.Context(), actorFrom(r), chi.URLParam(r, "id"), model.EventUpdate{
		Title:                req.Title,
		Description:          req.Description,
		Type:                 req.Type,
		RegistrationDeadline: req.RegistrationDeadline,
		StartDateTime:        req.StartDateTime,
		EndDateTime:          req.EndDateTime,
		MaxParticipants:      req.MaxParticipants,
		MinTeamSize:          req.MinTeamSize,
		MaxTeamSize:          req.MaxTeamSize,
		IsPaid:               req.IsPaid,
		Amount:               req.Amount,
		Eligibility:          req.Eligibility,
		RequiresApproval:     req.RequiresApproval,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEvent handles DELETE /events/{id}
func (h *LifecycleHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.DeleteEvent(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransitionEvent handles POST /events/{id}/transition
func (h *LifecycleHandler) TransitionEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.EventStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.events.TransitionEvent(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

// SetApproval handles POST /events/{id}/approval
func (h *LifecycleHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.ApprovalStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.events.SetApproval(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"approval_status": string(req.Status)})
}

// AddRound handles POST /events/{id}/rounds
func (h *LifecycleHandler) AddRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string    `json:"name"`
		StartDateTime time.Time `json:"start_date_time"`
		EndDateTime   time.Time `json:"end_date_time"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	round, err := h.events.AddRound(r.Context(), actorFrom(r), chi.URLParam(r, "id"),
		req.Name, req.StartDateTime, req.EndDateTime)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

// Registrations.

// Register handles POST /events/{id}/register
func (h *LifecycleHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	reg, err := h.registrations.Register(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// RegisterTeam handles POST /events/{id}/register-team
func (h *LifecycleHandler) RegisterTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"member_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	actor := actorFrom(r)
	team, regs, err := h.registrations.RegisterTeam(r.Context(), chi.URLParam(r, "id"),
		actor.ID, req.Name, req.MemberIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"team": team, "registrations": regs})
}

// CancelRegistration handles POST /registrations/{id}/cancel
func (h *LifecycleHandler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.registrations.Cancel(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.RegistrationCancelled)})
}

// Payments & refunds.

// InitiatePayment handles POST /registrations/{id}/payments
func (h *LifecycleHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.InitiatePayment(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ConfirmSettlement handles POST /payments/{id}/settlement, the callback
// surface for the payment collaborator. Duplicate confirmations are no-ops.
func (h *LifecycleHandler) ConfirmSettlement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Success       bool   `json:"success"`
		TransactionID string `json:"transaction_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.payments.ConfirmSettlement(r.Context(), chi.URLParam(r, "id"), req.Success, req.TransactionID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// RequestRefund handles POST /payments/{id}/refunds
func (h *LifecycleHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ref, err := h.payments.RequestRefund(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// ApproveRefund handles POST /refunds/{id}/approve
func (h *LifecycleHandler) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.ApproveRefund(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.RefundCompleted)})
}

// RejectRefund handles POST /refunds/{id}/reject
func (h *LifecycleHandler) RejectRefund(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.RejectRefund(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.RefundRejected)})
}

// Operations.

// RunSweep handles POST /admin/sweep: out-of-band invocation of the full
// transition sweep for operational recovery.
func (h *LifecycleHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if !model.HasCapability(actor.Role, model.CapApproveEvent) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	h.sched.RunAllTransitions(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "sweep complete"})
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
