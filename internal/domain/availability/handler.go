package availability

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsched/medsched/internal/platform/auth"
	"github.com/medsched/medsched/pkg/dateonly"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the authenticated doctor-availability surface and the
// anonymous slot discovery surface.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	da := api.Group("/doctor-availability", auth.RequireRole("doctor"))
	da.POST("/templates", h.CreateTemplate)
	da.GET("/templates", h.ListTemplates)
	da.PUT("/templates/:id", h.UpdateTemplate)
	da.DELETE("/templates/:id", h.DeleteTemplate)
	da.POST("/exceptions", h.CreateException)
	da.GET("/exceptions", h.ListExceptions)
	da.PUT("/exceptions/:id", h.UpdateException)
	da.DELETE("/exceptions/:id", h.DeleteException)
	da.GET("/slots", h.GetSlots)
	da.GET("/slots/:date", h.GetSlotsForDate)
	da.POST("/slots/:id/book", h.BookSlot)
	da.POST("/slots/:id/release", h.ReleaseSlot)
	da.GET("/settings", h.GetSettings)
	da.PUT("/settings", h.UpdateSettings)
	da.POST("/regenerate-slots", h.RegenerateSlots)

	pub := public.Group("/doctors/:doctorId")
	pub.GET("/slots", h.PublicSlots)
	pub.GET("/slots/:date", h.PublicSlotsForDate)
}

// httpError maps domain error kinds onto HTTP statuses: missing entities to
// 404, booking/uniqueness conflicts to 409, validation to 400, the rest to
// 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrExceptionNotFound),
		errors.Is(err, ErrSlotNotFound),
		errors.Is(err, ErrSettingsNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotNotAvailable), errors.Is(err, ErrExceptionExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func doctorIDFromContext(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "subject is not a doctor id")
	}
	return id, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func pathDate(c echo.Context) (dateonly.Date, error) {
	d, err := dateonly.ParseDate(c.Param("date"))
	if err != nil {
		return dateonly.Date{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	return d, nil
}

// dateWindow reads start_date/end_date query params, defaulting to the next
// 30 days when absent.
func dateWindow(c echo.Context) (from, to dateonly.Date, err error) {
	from = dateonly.Today()
	to = from.AddDays(30)
	if s := c.QueryParam("start_date"); s != "" {
		if from, err = dateonly.ParseDate(s); err != nil {
			return from, to, echo.NewHTTPError(http.StatusBadRequest, "invalid start_date")
		}
	}
	if s := c.QueryParam("end_date"); s != "" {
		if to, err = dateonly.ParseDate(s); err != nil {
			return from, to, echo.NewHTTPError(http.StatusBadRequest, "invalid end_date")
		}
	}
	if to.Before(from) {
		return from, to, echo.NewHTTPError(http.StatusBadRequest, "end_date precedes start_date")
	}
	return from, to, nil
}

// -- Templates --

func (h *Handler) CreateTemplate(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	var t AvailabilityTemplate
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.DoctorID = doctorID
	if err := h.svc.CreateTemplate(c.Request().Context(), &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListTemplates(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateTemplate(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var t AvailabilityTemplate
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.ID = id
	t.DoctorID = doctorID
	if err := h.svc.UpdateTemplate(c.Request().Context(), &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTemplate(c.Request().Context(), doctorID, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Exceptions --

func (h *Handler) CreateException(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	var e AvailabilityException
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.DoctorID = doctorID
	if err := h.svc.CreateException(c.Request().Context(), &e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListExceptions(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListExceptions(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateException(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var e AvailabilityException
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.ID = id
	e.DoctorID = doctorID
	if err := h.svc.UpdateException(c.Request().Context(), &e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteException(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteException(c.Request().Context(), doctorID, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Slots --

func (h *Handler) GetSlots(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	from, to, err := dateWindow(c)
	if err != nil {
		return err
	}
	items, err := h.svc.GetSlots(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetSlotsForDate(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	date, err := pathDate(c)
	if err != nil {
		return err
	}
	items, err := h.svc.GetSlotsForDate(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) BookSlot(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	slot, err := h.svc.BookSlot(c.Request().Context(), doctorID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) ReleaseSlot(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	slot, err := h.svc.ReleaseSlot(c.Request().Context(), doctorID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slot)
}

// -- Settings --

func (h *Handler) GetSettings(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	settings, err := h.svc.GetOrCreateSettings(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	var st AppointmentSettings
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st.DoctorID = doctorID
	updated, err := h.svc.UpdateSettings(c.Request().Context(), &st)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// -- Regeneration --

func (h *Handler) RegenerateSlots(c echo.Context) error {
	doctorID, err := doctorIDFromContext(c)
	if err != nil {
		return err
	}
	created, err := h.svc.RegenerateAllSlots(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"slotsCreated": created})
}

// -- Public --

func publicDoctorID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	return id, nil
}

func (h *Handler) PublicSlots(c echo.Context) error {
	doctorID, err := publicDoctorID(c)
	if err != nil {
		return err
	}
	from, to, err := dateWindow(c)
	if err != nil {
		return err
	}
	items, err := h.svc.GetAvailableSlots(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) PublicSlotsForDate(c echo.Context) error {
	doctorID, err := publicDoctorID(c)
	if err != nil {
		return err
	}
	date, err := pathDate(c)
	if err != nil {
		return err
	}
	items, err := h.svc.GetAvailableSlotsForDate(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}
