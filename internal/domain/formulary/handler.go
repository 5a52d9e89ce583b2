package formulary

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts reference-data maintenance under the doctor group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))

	g.GET("/medicaments", h.ListMedicaments)
	g.POST("/medicaments", h.CreateMedicament)
	g.GET("/medicaments/:id", h.GetMedicament)
	g.DELETE("/medicaments/:id", h.DeleteMedicament)
	g.GET("/medicaments/:id/all-contraindications", h.GetProfile)
	g.POST("/medicaments/:id/contraindications", h.LinkContraindication)
	g.DELETE("/medicaments/:id/contraindications/:cid", h.UnlinkContraindication)

	g.GET("/contraindications", h.ListContraindications)
	g.POST("/contraindications", h.CreateContraindication)
	g.DELETE("/contraindications/:id", h.DeleteContraindication)

	g.GET("/medicament-interactions", h.ListInteractions)
	g.POST("/medicament-interactions", h.CreateInteraction)
	g.DELETE("/medicament-interactions/:first/:second", h.DeleteInteraction)

	g.GET("/patients/:id/contraindications", h.GetPatientRestrictions)
	g.POST("/patients/:id/contraindications/medicaments", h.AddPatientMedicament)
	g.DELETE("/patients/:id/contraindications/medicaments/:mid", h.RemovePatientMedicament)
	g.POST("/patients/:id/contraindications/conditions", h.AddPatientCondition)
	g.DELETE("/patients/:id/contraindications/conditions/:cid", h.RemovePatientCondition)
}

type createMedicamentRequest struct {
	Name                     string      `json:"name"`
	Description              *string     `json:"description"`
	InteractingMedicamentIDs []uuid.UUID `json:"interacting_medicament_ids"`
	ContraindicationIDs      []uuid.UUID `json:"contraindication_ids"`
}

type createContraindicationRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type interactionRequest struct {
	FirstMedicamentID  uuid.UUID `json:"first_medicament_id"`
	SecondMedicamentID uuid.UUID `json:"second_medicament_id"`
}

type linkRequest struct {
	ContraindicationID uuid.UUID `json:"contraindication_id"`
}

type patientMedicamentRequest struct {
	MedicamentID uuid.UUID `json:"medicament_id"`
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Medicaments --

func (h *Handler) CreateMedicament(c echo.Context) error {
	var req createMedicamentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m := &Medicament{Name: req.Name, Description: req.Description}
	if err := h.svc.CreateMedicament(c.Request().Context(), m, req.InteractingMedicamentIDs, req.ContraindicationIDs); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedicament(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedicament(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedicaments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMedicaments(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteMedicament(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicament(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.Profile(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) LinkContraindication(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.LinkContraindication(c.Request().Context(), id, req.ContraindicationID); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, MedicamentContraindication{MedicamentID: id, ContraindicationID: req.ContraindicationID})
}

func (h *Handler) UnlinkContraindication(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cid, err := parseID(c, "cid")
	if err != nil {
		return err
	}
	if err := h.svc.UnlinkContraindication(c.Request().Context(), id, cid); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- General contraindications --

func (h *Handler) CreateContraindication(c echo.Context) error {
	var req createContraindicationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ci := &Contraindication{Name: req.Name, Description: req.Description}
	if err := h.svc.CreateContraindication(c.Request().Context(), ci); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, ci)
}

func (h *Handler) ListContraindications(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListContraindications(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteContraindication(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteContraindication(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Interactions --

func (h *Handler) CreateInteraction(c echo.Context) error {
	var req interactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, created, err := h.svc.AddInteraction(c.Request().Context(), req.FirstMedicamentID, req.SecondMedicamentID)
	if err != nil {
		return apperr.HTTP(err)
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	return c.JSON(status, in)
}

func (h *Handler) ListInteractions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInteractions(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteInteraction(c echo.Context) error {
	first, err := parseID(c, "first")
	if err != nil {
		return err
	}
	second, err := parseID(c, "second")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveInteraction(c.Request().Context(), first, second); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Patient direct contraindications --

func (h *Handler) GetPatientRestrictions(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.svc.PatientRestrictions(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) AddPatientMedicament(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req patientMedicamentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddPatientMedicamentContraindication(c.Request().Context(), id, req.MedicamentID); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusCreated)
}

func (h *Handler) RemovePatientMedicament(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	mid, err := parseID(c, "mid")
	if err != nil {
		return err
	}
	if err := h.svc.RemovePatientMedicamentContraindication(c.Request().Context(), id, mid); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddPatientCondition(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddPatientCondition(c.Request().Context(), id, req.ContraindicationID); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusCreated)
}

func (h *Handler) RemovePatientCondition(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cid, err := parseID(c, "cid")
	if err != nil {
		return err
	}
	if err := h.svc.RemovePatientCondition(c.Request().Context(), id, cid); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
