package medication

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/patients/:id/medicaments", h.ListPatientMedicaments)
	doctor.GET("/patients/:id/medicaments/active", h.ListActivePatientMedicaments)
	doctor.GET("/patients/:id/medication-report", h.GetPatientReport)
	doctor.GET("/patients/:id/medication-report.xlsx", h.ExportPatientReport)
	doctor.GET("/my-prescriptions", h.ListMyPrescriptions)
	doctor.PUT("/prescriptions/:id", h.UpdatePrescription)
	doctor.DELETE("/patient-medicaments/:id", h.DeletePrescription)

	patient := api.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.GET("/medicaments", h.ListOwnMedicaments)
	patient.GET("/medication-report", h.GetOwnReport)
}

type updateRequest struct {
	Dosage    *string `json:"dosage"`
	Frequency *string `json:"frequency"`
	// EndDate is YYYY-MM-DD; an empty string makes the record open-ended.
	EndDate *string `json:"end_date"`
	Notes   *string `json:"notes"`
}

func (r updateRequest) toUpdate() (Update, error) {
	u := Update{Dosage: r.Dosage, Frequency: r.Frequency, Notes: r.Notes}
	if r.EndDate != nil {
		if *r.EndDate == "" {
			u.ClearEndDate = true
		} else {
			d, err := clock.ParseDate(*r.EndDate)
			if err != nil {
				return Update{}, apperr.Invalid("end_date", "must be YYYY-MM-DD")
			}
			u.EndDate = &d
		}
	}
	return u, nil
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Doctor --

func (h *Handler) ListPatientMedicaments(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.AllMedicaments(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListActivePatientMedicaments(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	asOf := h.svc.Today()
	if v := c.QueryParam("date"); v != "" {
		if asOf, err = clock.ParseDate(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
	}
	items, err := h.svc.ActiveMedicaments(c.Request().Context(), id, asOf)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetPatientReport(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Report(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ExportPatientReport(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Report(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	data, err := ReportXLSX(r)
	if err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		"attachment; filename=medications-"+id.String()+".xlsx")
	return c.Blob(http.StatusOK, xlsxContentType, data)
}

func (h *Handler) ListMyPrescriptions(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePrescription(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := req.toUpdate()
	if err != nil {
		return apperr.HTTP(err)
	}
	m, err := h.svc.Update(c.Request().Context(), id, doctorID, u)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeletePrescription(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id, doctorID); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Patient --

func (h *Handler) ListOwnMedicaments(c echo.Context) error {
	patientID, err := auth.ProfileID(c, auth.RolePatient)
	if err != nil {
		return err
	}
	items, err := h.svc.AllMedicaments(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetOwnReport(c echo.Context) error {
	patientID, err := auth.ProfileID(c, auth.RolePatient)
	if err != nil {
		return err
	}
	r, err := h.svc.Report(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}
