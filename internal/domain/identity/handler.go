package identity

import (
	"net/http"
	"time"

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
	pub := api.Group("/auth")
	pub.POST("/register", h.Register)
	pub.POST("/login", h.Login)

	patient := api.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.GET("/profile", h.GetOwnProfile)
	patient.GET("/doctors", h.ListDoctors)
	patient.GET("/specializations", h.ListSpecializations)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/doctors", h.CreateDoctor)
	admin.GET("/doctors", h.ListDoctors)
	admin.GET("/doctors/:id", h.GetDoctor)
	admin.PUT("/doctors/:id", h.UpdateDoctor)
	admin.DELETE("/doctors/:id", h.DeleteDoctor)
	admin.POST("/specializations", h.CreateSpecialization)
	admin.GET("/specializations", h.ListSpecializations)
	admin.GET("/patients", h.ListPatients)
	admin.GET("/patients/:id", h.GetPatient)
	admin.PUT("/patients/:id", h.UpdatePatient)
	admin.DELETE("/patients/:id", h.DeletePatient)
}

type registerRequest struct {
	Credentials
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	Patronymic      *string `json:"patronymic"`
	Gender          string  `json:"gender"`
	BirthDate       string  `json:"birth_date"`
	Passport        string  `json:"passport"`
	InsuranceNumber string  `json:"insurance_number"`
	Phone           string  `json:"phone"`
}

type createDoctorRequest struct {
	Credentials
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Patronymic       *string    `json:"patronymic"`
	Phone            string     `json:"phone"`
	SpecializationID *uuid.UUID `json:"specialization_id"`
}

type updatePatientRequest struct {
	PatientUpdate
	BirthDate *string `json:"birth_date"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func parseBirthDate(s string) (time.Time, error) {
	d, err := clock.ParseDate(s)
	if err != nil {
		return d, apperr.HTTP(apperr.Invalid("birth_date", "must be YYYY-MM-DD"))
	}
	return d, nil
}

// -- Auth --

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	birth, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return err
	}
	p := &Patient{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Patronymic:      req.Patronymic,
		Gender:          req.Gender,
		BirthDate:       birth,
		Passport:        req.Passport,
		InsuranceNumber: req.InsuranceNumber,
		Phone:           req.Phone,
	}
	if err := h.svc.Register(c.Request().Context(), req.Credentials, p); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Login(c echo.Context) error {
	var req Credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

// -- Patient --

func (h *Handler) GetOwnProfile(c echo.Context) error {
	id, err := auth.ProfileID(c, auth.RolePatient)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Doctors --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req createDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d := &Doctor{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Patronymic:       req.Patronymic,
		Phone:            req.Phone,
		SpecializationID: req.SpecializationID,
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), req.Credentials, d); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := DoctorFilter{Search: c.QueryParam("q")}
	if v := c.QueryParam("specialization_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid specialization_id")
		}
		filter.SpecializationID = &id
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DoctorUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Specializations --

func (h *Handler) CreateSpecialization(c echo.Context) error {
	var sp Specialization
	if err := c.Bind(&sp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp.ID = uuid.Nil
	if err := h.svc.CreateSpecialization(c.Request().Context(), &sp); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, sp)
}

func (h *Handler) ListSpecializations(c echo.Context) error {
	items, err := h.svc.ListSpecializations(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updatePatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BirthDate != nil {
		d, err := parseBirthDate(*req.BirthDate)
		if err != nil {
			return err
		}
		req.PatientUpdate.BirthDate = &d
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, req.PatientUpdate)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
