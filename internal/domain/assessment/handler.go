package assessment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dr-abraham74/paracetamol-OD/internal/platform/auth"
	"github.com/dr-abraham74/paracetamol-OD/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – physician, nurse, pharmacist
	readGroup := api.Group("", auth.RequireRole("physician", "nurse", "pharmacist"))
	readGroup.GET("/assessments", h.ListAssessments)
	readGroup.GET("/assessments/:id", h.GetAssessment)
	readGroup.GET("/dosing-protocols", h.GetDosingProtocol)
	readGroup.GET("/parameters", h.GetParameters)

	// Write endpoints – physician, nurse
	writeGroup := api.Group("", auth.RequireRole("physician", "nurse"))
	writeGroup.POST("/assessments", h.CreateAssessment)
	writeGroup.POST("/assessments/:id/intake", h.SubmitIntake)
	writeGroup.POST("/assessments/:id/admission-bloods", h.SubmitAdmissionBloods)
	writeGroup.POST("/assessments/:id/reassessment-bloods", h.SubmitReassessmentBloods)
	writeGroup.POST("/assessments/:id/restart", h.RestartAssessment)
	writeGroup.DELETE("/assessments/:id", h.DeleteAssessment)
}

// httpError translates domain errors to transport status codes. Bad input
// is 400, unknown sessions 404, stage-order and missing-baseline problems
// 409, anything else 500.
func httpError(err error) error {
	var ve *ValidationError
	var se *StateError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrSessionNotFound.Error())
	case errors.As(err, &se):
		return echo.NewHTTPError(http.StatusConflict, se.Error())
	case errors.Is(err, ErrMissingAdmissionBaseline):
		return echo.NewHTTPError(http.StatusConflict, ErrMissingAdmissionBaseline.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Request / response shapes --

type admissionBloodsRequest struct {
	Bloods        BloodPanel     `json:"bloods"`
	ClinicalSigns *ClinicalSigns `json:"clinical_signs,omitempty"`
}

type reassessmentBloodsRequest struct {
	Bloods BloodPanel `json:"bloods"`
}

type decisionResponse struct {
	ID         uuid.UUID `json:"id"`
	State      FlowState `json:"state"`
	Decision   Decision  `json:"decision"`
	Guidance   []string  `json:"guidance"`
	Disclaimer string    `json:"disclaimer"`
}

type indicationResponse struct {
	ID             uuid.UUID       `json:"id"`
	State          FlowState       `json:"state"`
	Indication     NacIndication   `json:"indication"`
	DosingProtocol *DosingProtocol `json:"dosing_protocol,omitempty"`
	Disclaimer     string          `json:"disclaimer"`
}

type continuationResponse struct {
	ID           uuid.UUID       `json:"id"`
	State        FlowState       `json:"state"`
	Continuation NacContinuation `json:"continuation"`
	Disclaimer   string          `json:"disclaimer"`
}

type dosingProtocolResponse struct {
	Phase    Phase          `json:"phase"`
	Protocol DosingProtocol `json:"protocol"`
}

// -- Assessment handlers --

func (h *Handler) CreateAssessment(c echo.Context) error {
	var intake PatientIntake
	if err := c.Bind(&intake); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, decision, err := h.svc.CreateAssessment(c.Request().Context(), intake)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, decisionResponse{
		ID:         session.ID,
		State:      session.Flow.State,
		Decision:   decision,
		Guidance:   Guidance(decision.Recommendation),
		Disclaimer: Disclaimer,
	})
}

// SubmitIntake resubmits the presentation facts to a restarted session,
// keeping the original session id on the corrected record.
func (h *Handler) SubmitIntake(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var intake PatientIntake
	if err := c.Bind(&intake); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, decision, err := h.svc.SubmitIntake(c.Request().Context(), id, intake)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, decisionResponse{
		ID:         session.ID,
		State:      session.Flow.State,
		Decision:   decision,
		Guidance:   Guidance(decision.Recommendation),
		Disclaimer: Disclaimer,
	})
}

func (h *Handler) GetAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	session, err := h.svc.GetAssessment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) ListAssessments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAssessments(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SubmitAdmissionBloods(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req admissionBloodsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, indication, err := h.svc.SubmitAdmissionBloods(c.Request().Context(), id, req.Bloods, req.ClinicalSigns)
	if err != nil {
		return httpError(err)
	}
	resp := indicationResponse{
		ID:         session.ID,
		State:      session.Flow.State,
		Indication: indication,
		Disclaimer: Disclaimer,
	}
	if indication.Indicated && session.Flow.Intake != nil {
		protocol := h.svc.engine.DosingProtocolFor(session.Flow.Intake.WeightKg)
		resp.DosingProtocol = &protocol
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SubmitReassessmentBloods(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reassessmentBloodsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, continuation, err := h.svc.SubmitReassessmentBloods(c.Request().Context(), id, req.Bloods)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, continuationResponse{
		ID:           session.ID,
		State:        session.Flow.State,
		Continuation: continuation,
		Disclaimer:   Disclaimer,
	})
}

func (h *Handler) RestartAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	session, err := h.svc.RestartAssessment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) DeleteAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAssessment(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Reference handlers --

func (h *Handler) GetDosingProtocol(c echo.Context) error {
	weight, err := strconv.ParseFloat(c.QueryParam("weight_kg"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid weight_kg")
	}
	phase := Phase(c.QueryParam("phase"))
	if phase == "" {
		phase = PhaseInitial
	}
	protocol, err := h.svc.DosingProtocol(weight, phase)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dosingProtocolResponse{
		Phase:    phase,
		Protocol: protocol,
	})
}

func (h *Handler) GetParameters(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Parameters())
}
