package appointments

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/equicare/equicare-platform/internal/apperr"
	"github.com/equicare/equicare-platform/internal/identity"
	"github.com/equicare/equicare-platform/internal/money"
	"github.com/equicare/equicare-platform/pkg/logging"
)

// Handler exposes the negotiation machine over HTTP. Monetary amounts cross
// this boundary as decimal display strings; everything behind it is minor
// units.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates the appointments HTTP handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if svc == nil {
		panic("appointments: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the negotiation endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Request)
	r.Get("/", h.List)
	r.Route("/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Amend)
		r.Post("/accept", h.Accept)
		r.Post("/reject", h.Reject)
		r.Post("/alternative", h.ProposeAlternative)
		r.Post("/cancel", h.Cancel)
		r.Post("/complete", h.Complete)
	})
	return r
}

type requestBody struct {
	CounterpartyID  int64    `json:"counterparty_id"`
	HorseIDs        []int64  `json:"horse_ids"`
	Date            string   `json:"date"`
	DurationMinutes *int32   `json:"duration_minutes,omitempty"`
	Location        string   `json:"location,omitempty"`
	Price           *string  `json:"price,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	IsPeriodic      bool     `json:"is_periodic,omitempty"`
	Frequency       string   `json:"frequency,omitempty"`
	EndDate         *string  `json:"end_date,omitempty"`
}

// Request handles POST /appointments.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.KindForbidden, "authentication required"))
		return
	}

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}

	req := RequestAppointment{
		CounterpartyID:  body.CounterpartyID,
		HorseIDs:        body.HorseIDs,
		DurationMinutes: body.DurationMinutes,
		Location:        body.Location,
		Notes:           body.Notes,
		IsPeriodic:      body.IsPeriodic,
		Frequency:       Frequency(body.Frequency),
	}
	var err error
	if req.Date, err = parseDate(body.Date); err != nil {
		writeError(w, err)
		return
	}
	if req.PriceCents, err = parsePrice(body.Price); err != nil {
		writeError(w, err)
		return
	}
	if body.EndDate != nil {
		end, err := parseDate(*body.EndDate)
		if err != nil {
			writeError(w, err)
			return
		}
		req.EndDate = &end
	}

	appt, err := h.svc.Request(r.Context(), actor, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(appt))
}

type acceptBody struct {
	Price           *string `json:"price,omitempty"`
	DurationMinutes *int32  `json:"duration_minutes,omitempty"`
}

// Accept handles POST /appointments/{id}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body acceptBody
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, err)
		return
	}
	price, err := parsePrice(body.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	appt, err := h.svc.Accept(r.Context(), actor, AcceptAppointment{
		AppointmentID:   id,
		PriceCents:      price,
		DurationMinutes: body.DurationMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

type reasonBody struct {
	Reason string `json:"reason,omitempty"`
}

// Reject handles POST /appointments/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, err)
		return
	}
	appt, err := h.svc.Reject(r.Context(), actor, RejectAppointment{AppointmentID: id, Reason: body.Reason})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

type alternativeBody struct {
	Date            string  `json:"date"`
	DurationMinutes *int32  `json:"duration_minutes,omitempty"`
	Price           *string `json:"price,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

type alternativeResponse struct {
	Source   apptResponse `json:"source"`
	Proposal apptResponse `json:"proposal"`
}

// ProposeAlternative handles POST /appointments/{id}/alternative.
func (h *Handler) ProposeAlternative(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body alternativeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	req := ProposeAlternative{AppointmentID: id, DurationMinutes: body.DurationMinutes, Notes: body.Notes}
	var err error
	if req.Date, err = parseDate(body.Date); err != nil {
		writeError(w, err)
		return
	}
	if req.PriceCents, err = parsePrice(body.Price); err != nil {
		writeError(w, err)
		return
	}
	source, proposal, err := h.svc.ProposeAlternative(r.Context(), actor, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alternativeResponse{
		Source:   toResponse(source),
		Proposal: toResponse(proposal),
	})
}

// Cancel handles POST /appointments/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, err)
		return
	}
	appt, err := h.svc.Cancel(r.Context(), actor, CancelAppointment{AppointmentID: id, Reason: body.Reason})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

type completeBody struct {
	Report string `json:"report,omitempty"`
}

// Complete handles POST /appointments/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body completeBody
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, err)
		return
	}
	appt, err := h.svc.Complete(r.Context(), actor, CompleteAppointment{AppointmentID: id, Report: body.Report})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

type amendBody struct {
	Price           *string `json:"price,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	Date            *string `json:"date,omitempty"`
	DurationMinutes *int32  `json:"duration_minutes,omitempty"`
}

// Amend handles PATCH /appointments/{id}.
func (h *Handler) Amend(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body amendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	req := AmendAppointment{AppointmentID: id, Notes: body.Notes, DurationMinutes: body.DurationMinutes}
	var err error
	if req.PriceCents, err = parsePrice(body.Price); err != nil {
		writeError(w, err)
		return
	}
	if body.Date != nil {
		date, err := parseDate(*body.Date)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Date = &date
	}
	appt, err := h.svc.Amend(r.Context(), actor, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Get handles GET /appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// List handles GET /appointments?client=|professional=|horse=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.KindForbidden, "authentication required"))
		return
	}

	q := r.URL.Query()
	var (
		appts []Appointment
		err   error
	)
	switch {
	case q.Get("client") != "":
		var id int64
		if id, err = strconv.ParseInt(q.Get("client"), 10, 64); err == nil {
			appts, err = h.svc.ListByClient(r.Context(), actor, id)
		}
	case q.Get("professional") != "":
		var id int64
		if id, err = strconv.ParseInt(q.Get("professional"), 10, 64); err == nil {
			appts, err = h.svc.ListByProfessional(r.Context(), actor, id)
		}
	case q.Get("horse") != "":
		var id int64
		if id, err = strconv.ParseInt(q.Get("horse"), 10, 64); err == nil {
			appts, err = h.svc.ListByHorse(r.Context(), actor, id)
		}
	default:
		writeError(w, apperr.New(apperr.KindValidation, "one of client, professional or horse is required"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]apptResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (identity.Actor, int64, bool) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.KindForbidden, "authentication required"))
		return identity.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "appointmentID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperr.New(apperr.KindValidation, "invalid appointment id"))
		return identity.Actor{}, 0, false
	}
	return actor, id, true
}

// apptResponse is the wire form of an appointment. Prices appear both as
// display strings and raw minor units.
type apptResponse struct {
	ID                    int64    `json:"id"`
	ClientID              int64    `json:"client_id"`
	ProfessionalID        int64    `json:"professional_id"`
	HorseIDs              []int64  `json:"horse_ids"`
	Date                  string   `json:"date"`
	DurationMinutes       *int32   `json:"duration_minutes,omitempty"`
	Location              string   `json:"location,omitempty"`
	IsPeriodic            bool     `json:"is_periodic,omitempty"`
	Frequency             string   `json:"frequency,omitempty"`
	EndDate               *string  `json:"end_date,omitempty"`
	Price                 *string  `json:"price,omitempty"`
	PriceCents            *int64   `json:"price_cents,omitempty"`
	Commission            string   `json:"commission"`
	CommissionCents       int64    `json:"commission_cents"`
	PaymentStatus         string   `json:"payment_status"`
	PaymentMethod         string   `json:"payment_method,omitempty"`
	InvoiceURL            string   `json:"invoice_url,omitempty"`
	Status                string   `json:"status"`
	CreatedBy             string   `json:"created_by"`
	HasAlternative        bool     `json:"has_alternative,omitempty"`
	OriginalAppointmentID *int64   `json:"original_appointment_id,omitempty"`
	Notes                 string   `json:"notes,omitempty"`
	ReminderSent          bool     `json:"reminder_sent,omitempty"`
	ReportSent            bool     `json:"report_sent,omitempty"`
	Version               int64    `json:"version"`
	CreatedAt             string   `json:"created_at"`
	UpdatedAt             string   `json:"updated_at"`
}

func toResponse(a *Appointment) apptResponse {
	resp := apptResponse{
		ID:                    a.ID,
		ClientID:              a.ClientID,
		ProfessionalID:        a.ProfessionalID,
		HorseIDs:              a.HorseIDs,
		Date:                  a.Date.UTC().Format(time.RFC3339),
		DurationMinutes:       a.DurationMinutes,
		Location:              a.Location,
		IsPeriodic:            a.IsPeriodic,
		Frequency:             string(a.Frequency),
		Commission:            money.ToDisplay(a.CommissionCents),
		CommissionCents:       a.CommissionCents,
		PaymentStatus:         string(a.PaymentStatus),
		PaymentMethod:         a.PaymentMethod,
		InvoiceURL:            a.InvoiceURL,
		Status:                string(a.Status),
		CreatedBy:             string(a.CreatedBy),
		HasAlternative:        a.HasAlternative,
		OriginalAppointmentID: a.OriginalAppointmentID,
		Notes:                 a.Notes,
		ReminderSent:          a.ReminderSent,
		ReportSent:            a.ReportSent,
		Version:               a.Version,
		CreatedAt:             a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:             a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.PriceCents != nil {
		display := money.ToDisplay(*a.PriceCents)
		resp.Price = &display
		cents := *a.PriceCents
		resp.PriceCents = &cents
	}
	if a.EndDate != nil {
		end := a.EndDate.UTC().Format(time.RFC3339)
		resp.EndDate = &end
	}
	return resp
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apperr.New(apperr.KindValidation, "date is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.KindValidation, "date %q is not RFC 3339", raw)
	}
	return t, nil
}

func parsePrice(raw *string) (*int64, error) {
	if raw == nil {
		return nil, nil
	}
	cents, err := money.ToMinorUnits(*raw)
	if err != nil {
		return nil, err
	}
	return &cents, nil
}

// decodeOptional tolerates an empty body for endpoints whose fields are all
// optional.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.KindValidation, "malformed request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"kind": string(kind), "message": msg},
	})
}
