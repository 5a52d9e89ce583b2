package cds

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/clock"
)

type Handler struct {
	committer *Committer
}

func NewHandler(committer *Committer) *Handler {
	return &Handler{committer: committer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	g.POST("/appointments/:id/medicaments", h.Prescribe)
	g.POST("/appointments/:id/medicaments/check", h.Check)
	g.GET("/appointments/:id/medicaments", h.ListVisitMedicaments)
}

type candidateRequest struct {
	MedicamentID uuid.UUID `json:"medicament_id"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	Notes        *string   `json:"notes"`
}

type prescribeRequest struct {
	Medicaments []candidateRequest `json:"medicaments"`
}

type verdictResponse struct {
	MedicamentID   uuid.UUID `json:"medicament_id"`
	MedicamentName string    `json:"medicament_name"`
	Admitted       bool      `json:"admitted"`
	Reasons        []string  `json:"reasons"`
}

type noneAdmissibleResponse struct {
	Message   string     `json:"message"`
	Conflicts []Conflict `json:"conflicts"`
}

func (r prescribeRequest) candidates() ([]Candidate, error) {
	out := make([]Candidate, len(r.Medicaments))
	for i, m := range r.Medicaments {
		c := Candidate{MedicamentID: m.MedicamentID, Dosage: m.Dosage, Frequency: m.Frequency, Notes: m.Notes}
		if m.StartDate != "" {
			d, err := clock.ParseDate(m.StartDate)
			if err != nil {
				return nil, apperr.Invalid(fmt.Sprintf("medicaments[%d].start_date", i), "must be YYYY-MM-DD")
			}
			c.StartDate = d
		}
		if m.EndDate != "" {
			d, err := clock.ParseDate(m.EndDate)
			if err != nil {
				return nil, apperr.Invalid(fmt.Sprintf("medicaments[%d].end_date", i), "must be YYYY-MM-DD")
			}
			c.EndDate = &d
		}
		out[i] = c
	}
	return out, nil
}

func (h *Handler) request(c echo.Context) (Request, error) {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return Request{}, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Request{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body prescribeRequest
	if err := c.Bind(&body); err != nil {
		return Request{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	candidates, err := body.candidates()
	if err != nil {
		return Request{}, apperr.HTTP(err)
	}
	return Request{AppointmentID: id, DoctorID: doctorID, Candidates: candidates}, nil
}

// Prescribe commits a prescription batch for the doctor's visit.
func (h *Handler) Prescribe(c echo.Context) error {
	req, err := h.request(c)
	if err != nil {
		return err
	}
	report, err := h.committer.Commit(c.Request().Context(), req)
	if err != nil {
		var none *NoneAdmissibleError
		if errors.As(err, &none) {
			return c.JSON(http.StatusUnprocessableEntity, noneAdmissibleResponse{
				Message:   "no medicament can be prescribed",
				Conflicts: none.Conflicts,
			})
		}
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, report)
}

// Check returns the verdicts for a batch without prescribing anything.
func (h *Handler) Check(c echo.Context) error {
	req, err := h.request(c)
	if err != nil {
		return err
	}
	eval, err := h.committer.Check(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	out := make([]verdictResponse, len(eval.Verdicts))
	for i, v := range eval.Verdicts {
		out[i] = verdictResponse{
			MedicamentID:   v.Medicament.ID,
			MedicamentName: v.Medicament.Name,
			Admitted:       v.Admitted(),
			Reasons:        v.Reasons,
		}
		if out[i].Reasons == nil {
			out[i].Reasons = []string{}
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListVisitMedicaments(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.committer.VisitMedicaments(c.Request().Context(), id, doctorID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}
