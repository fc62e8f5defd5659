package httpapi

import (
	"net/http"
	"time"

	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/domain/glucose"
	"github.com/VitalSync/health_layer/internal/app/services/medications"
	"github.com/VitalSync/health_layer/internal/httputil"
)

func (h *handler) recordReading(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var reading glucose.Reading
	if !httputil.DecodeJSON(w, r, &reading) {
		return
	}
	created, err := h.app.Glucose.Record(r.Context(), userID, reading)
	respond(w, r, http.StatusCreated, created, err)
}

// listReadings takes from/to as dates; to covers its whole day.
func (h *handler) listReadings(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if !to.IsZero() {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	readings, err := h.app.Glucose.List(r.Context(), userID, from, to)
	respond(w, r, http.StatusOK, readings, err)
}

func (h *handler) glucoseSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	summary, err := h.app.Glucose.Summary(r.Context(), userID, days)
	respond(w, r, http.StatusOK, summary, err)
}

func (h *handler) deleteReading(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	err := h.app.Glucose.Delete(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *handler) listMedications(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	meds, err := h.app.Medications.List(r.Context(), userID, activeOnly)
	respond(w, r, http.StatusOK, meds, err)
}

func (h *handler) createMedication(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in medications.Input
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	created, err := h.app.Medications.Create(r.Context(), userID, in)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *handler) getMedication(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	med, err := h.app.Medications.Get(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusOK, med, err)
}

func (h *handler) updateMedication(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in medications.Input
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	med, err := h.app.Medications.Update(r.Context(), userID, pathID(r), in)
	respond(w, r, http.StatusOK, med, err)
}

func (h *handler) deleteMedication(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	err := h.app.Medications.Delete(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *handler) recordDose(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status       string    `json:"status"`
		ScheduledFor time.Time `json:"scheduled_for"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	dose, err := h.app.Medications.RecordDose(r.Context(), userID, pathID(r), body.Status, body.ScheduledFor)
	respond(w, r, http.StatusCreated, dose, err)
}

func (h *handler) adherence(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	report, err := h.app.Medications.Adherence(r.Context(), userID, days)
	respond(w, r, http.StatusOK, report, err)
}

func (h *handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	upcoming, err := queryBool(r, "upcoming")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	appts, err := h.app.Appointments.List(r.Context(), userID, upcoming)
	respond(w, r, http.StatusOK, appts, err)
}

func (h *handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in appointment.Appointment
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	created, err := h.app.Appointments.Create(r.Context(), userID, in)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	appt, err := h.app.Appointments.Get(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusOK, appt, err)
}

func (h *handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in appointment.Appointment
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	appt, err := h.app.Appointments.Update(r.Context(), userID, pathID(r), in)
	respond(w, r, http.StatusOK, appt, err)
}

func (h *handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	err := h.app.Appointments.Delete(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	appt, err := h.app.Appointments.Cancel(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusOK, appt, err)
}

func (h *handler) completeAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	appt, err := h.app.Appointments.Complete(r.Context(), userID, pathID(r))
	respond(w, r, http.StatusOK, appt, err)
}
