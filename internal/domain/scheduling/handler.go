package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/schedules", h.CreateSchedule)
	admin.POST("/schedules/batch", h.CreateScheduleBatch)
	admin.PUT("/schedules/:id", h.UpdateSchedule)
	admin.PATCH("/schedules/:id/availability", h.SetAvailability)
	admin.DELETE("/schedules/:id", h.DeleteSchedule)
	admin.GET("/doctors/:id/schedule", h.GetDoctorSchedule)
	admin.GET("/appointments", h.ListAppointments)
	admin.GET("/appointments/:id", h.GetAppointment)
	admin.DELETE("/appointments/:id", h.DeleteAppointment)
	admin.POST("/billings", h.CreateBilling)
	admin.GET("/billings", h.ListBillings)
	admin.PATCH("/billings/:id/pay", h.PayBilling)

	patient := api.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.GET("/doctors/:id/schedule", h.GetDoctorSchedule)
	patient.GET("/appointments", h.ListOwnAppointments)
	patient.POST("/appointments", h.Book)
	patient.DELETE("/appointments/:id", h.Cancel)
	patient.GET("/billings", h.ListOwnBillings)

	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/schedule", h.GetOwnSchedule)
	doctor.GET("/appointments", h.ListDoctorAppointments)
	doctor.GET("/appointments/:id", h.GetDoctorAppointment)
	doctor.PATCH("/appointments/:id/status", h.UpdateStatus)
	doctor.POST("/appointments/:id/information", h.AddInformation)
}

type scheduleRequest struct {
	DoctorID     uuid.UUID `json:"doctor_id"`
	OfficeNumber string    `json:"office_number"`
	Date         string    `json:"date"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	IsAvailable  *bool     `json:"is_available"`
	Count        int       `json:"count"`
}

func (r scheduleRequest) schedule() (*Schedule, error) {
	d, err := clock.ParseDate(r.Date)
	if err != nil {
		return nil, apperr.Invalid("date", "must be YYYY-MM-DD")
	}
	s := &Schedule{
		DoctorID:     r.DoctorID,
		OfficeNumber: r.OfficeNumber,
		Date:         d,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		IsAvailable:  true,
	}
	if r.IsAvailable != nil {
		s.IsAvailable = *r.IsAvailable
	}
	return s, nil
}

type bookRequest struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type informationRequest struct {
	Information string `json:"information"`
}

type billingRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	AmountCents   int64     `json:"amount_cents"`
	Description   *string   `json:"description"`
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Admin --

func (h *Handler) CreateSchedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := req.schedule()
	if err != nil {
		return apperr.HTTP(err)
	}
	if err := h.svc.CreateSchedule(c.Request().Context(), s); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) CreateScheduleBatch(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := clock.ParseDate(req.Date)
	if err != nil {
		return apperr.HTTP(apperr.Invalid("date", "must be YYYY-MM-DD"))
	}
	slots, err := h.svc.CreateScheduleBatch(c.Request().Context(), Window{
		DoctorID:     req.DoctorID,
		OfficeNumber: req.OfficeNumber,
		Date:         d,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Count:        req.Count,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, slots)
}

func (h *Handler) UpdateSchedule(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := req.schedule()
	if err != nil {
		return apperr.HTTP(err)
	}
	s.ID = id
	if err := h.svc.UpdateSchedule(c.Request().Context(), s); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req struct {
		IsAvailable bool `json:"is_available"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetAvailable(c.Request().Context(), id, req.IsAvailable); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteSchedule(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSchedule(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetDoctorSchedule(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.DoctorSchedule(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateBilling(c echo.Context) error {
	var req billingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := &Billing{AppointmentID: req.AppointmentID, AmountCents: req.AmountCents, Description: req.Description}
	if err := h.svc.CreateBilling(c.Request().Context(), b); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBillings(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBillings(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) PayBilling(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	b, err := h.svc.PayBilling(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

// -- Patient --

func (h *Handler) ListOwnBillings(c echo.Context) error {
	patientID, err := auth.ProfileID(c, auth.RolePatient)
	if err != nil {
		return err
	}
	items, err := h.svc.PatientBillings(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Book(c echo.Context) error {
	patientID, err := auth.ProfileID(c, auth.RolePatient)
	if err != nil {
		return err
	}
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Book(c.Request().Context(), patientID, req.ScheduleID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	patientID, err := auth.ProfileID(c, auth.RolePatient)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), patientID, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListOwnAppointments(c echo.Context) error {
	patientID, err := auth.ProfileID(c, auth.RolePatient)
	if err != nil {
		return err
	}
	items, err := h.svc.PatientAppointments(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Doctor --

func (h *Handler) GetOwnSchedule(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	items, err := h.svc.DoctorSchedule(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDoctorAppointments(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.DoctorAppointments(c.Request().Context(), doctorID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctorAppointment(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.DoctorVisit(c.Request().Context(), id, doctorID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), id, doctorID, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AddInformation(c echo.Context) error {
	doctorID, err := auth.ProfileID(c, auth.RoleDoctor)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req informationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.AddInformation(c.Request().Context(), id, doctorID, req.Information)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}
