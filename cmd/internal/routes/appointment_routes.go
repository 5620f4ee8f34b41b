package routes

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"medibook/cmd/internal/service"
	"medibook/cmd/internal/utils"
	"medibook/cmd/internal/utils/apierror"

	"github.com/labstack/echo/v4"
)

type AppointmentService interface {
	CreateAppointment(ctx context.Context, req *service.CreateAppointmentRequest, subId string) (*service.AppointmentResponse, apierror.ErrorResponse)
	TransitionStatus(ctx context.Context, id string, req *service.UpdateStatusRequest, subId string) (*service.StatusUpdateResponse, apierror.ErrorResponse)
	Reschedule(ctx context.Context, id string, req *service.RescheduleRequest, subId string) (*service.AppointmentResponse, apierror.ErrorResponse)
	ListAll(ctx context.Context, subId string) ([]*service.AppointmentResponse, apierror.ErrorResponse)
	ListByStatus(ctx context.Context, status, subId string) ([]*service.AppointmentResponse, apierror.ErrorResponse)
	ListByEmail(ctx context.Context, email, subId string) ([]*service.AppointmentResponse, apierror.ErrorResponse)
	ListMine(ctx context.Context, subId string) ([]*service.AppointmentResponse, apierror.ErrorResponse)
	GetAppointment(ctx context.Context, id, subId string) (*service.AppointmentResponse, apierror.ErrorResponse)
	GetCalendar(ctx context.Context, from, to int64) (*service.CalendarResponse, apierror.ErrorResponse)
	GetAvailability(ctx context.Context, rawTime string) (*service.AvailabilityResponse, apierror.ErrorResponse)
}

type DefaultAppointmentRoute struct {
	AppointmentService AppointmentService
	Location           *time.Location
}

func NewAppointmentDefault(apptService AppointmentService, loc *time.Location) *DefaultAppointmentRoute {
	if loc == nil {
		loc = time.UTC
	}
	return &DefaultAppointmentRoute{AppointmentService: apptService, Location: loc}
}

// GetAppointments lists every appointment, or those with ?status= when given.
func (a *DefaultAppointmentRoute) GetAppointments(c echo.Context) error {
	data, err := utils.ParseTokenDataCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}

	ctx := c.Request().Context()
	var appts []*service.AppointmentResponse
	var apierr apierror.ErrorResponse
	if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
		appts, apierr = a.AppointmentService.ListByStatus(ctx, status, data.Sub)
	} else {
		appts, apierr = a.AppointmentService.ListAll(ctx, data.Sub)
	}
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, appts)
}

func (a *DefaultAppointmentRoute) FilterAppointments(c echo.Context) error {
	status := strings.TrimSpace(c.QueryParam("status"))
	if status == "" {
		return c.JSON(http.StatusBadRequest, apierror.NewMissingParamError("status"))
	}

	data, err := utils.ParseTokenDataCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}

	appts, apierr := a.AppointmentService.ListByStatus(c.Request().Context(), status, data.Sub)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, appts)
}

func (a *DefaultAppointmentRoute) GetPatientAppointments(c echo.Context) error {
	data, err := utils.ParseTokenDataCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}

	appts, apierr := a.AppointmentService.ListByEmail(c.Request().Context(), c.QueryParam("email"), data.Sub)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, appts)
}

func (a *DefaultAppointmentRoute) GetMyAppointments(c echo.Context) error {
	data, err := utils.ParseTokenDataCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}

	appts, apierr := a.AppointmentService.ListMine(c.Request().Context(), data.Sub)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, appts)
}

func (a *DefaultAppointmentRoute) GetAppointment(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, apierror.NewMissingParamError("id"))
	}

	data, err := utils.ParseTokenDataCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}

	appt, apierr := a.AppointmentService.GetAppointment(c.Request().Context(), id, data.Sub)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, appt)
}

// CreateAppointment is public; a valid token only attributes the booking
// note to its author.
func (a *DefaultAppointmentRoute) CreateAppointment(c echo.Context) error {
	var req service.CreateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierror.MalformedBodyError)
	}

	appt, apierr := a.AppointmentService.CreateAppointment(c.Request().Context(), &req, utils.OptionalSub(c))
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (a *DefaultAppointmentRoute) UpdateStatus(c echo.Context) error {
	var req service.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierror.MalformedBodyError)
	}

	data, err := utils.ParseTokenDataCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}

	resp, apierr := a.AppointmentService.TransitionStatus(c.Request().Context(), c.Param("id"), &req, data.Sub)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *DefaultAppointmentRoute) Reschedule(c echo.Context) error {
	var req service.RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apierror.MalformedBodyError)
	}

	data, err := utils.ParseTokenDataCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}

	appt, apierr := a.AppointmentService.Reschedule(c.Request().Context(), c.Param("id"), &req, data.Sub)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, appt)
}

func (a *DefaultAppointmentRoute) GetCalendar(c echo.Context) error {
	monthStr := c.QueryParam("month") // "2025-08"
	if monthStr == "" {
		return c.JSON(http.StatusBadRequest, apierror.NewMissingParamError("month"))
	}

	monthStartMillis, monthEndMillis, err := parseMonthString(monthStr, a.Location)
	if err != nil {
		apierr := apierror.NewSimple(http.StatusBadRequest, "Could not understand month format")
		return c.JSON(apierr.Code(), apierr)
	}

	calendar, apierr := a.AppointmentService.GetCalendar(c.Request().Context(), monthStartMillis, monthEndMillis)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, calendar)
}

func (a *DefaultAppointmentRoute) GetAvailability(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("time"))
	if raw == "" {
		return c.JSON(http.StatusBadRequest, apierror.NewMissingParamError("time"))
	}

	avail, apierr := a.AppointmentService.GetAvailability(c.Request().Context(), raw)
	if apierr != nil {
		return c.JSON(apierr.Code(), apierr)
	}
	return c.JSON(http.StatusOK, avail)
}

// parseMonthString takes "YYYY-MM" (e.g., "2025-08") and returns the start
// of that month and the start of the next month, in the clinic's time zone,
// as epoch millis.
func parseMonthString(monthString string, loc *time.Location) (int64, int64, error) {
	t, err := time.ParseInLocation("2006-01", monthString, loc)
	if err != nil {
		return 0, 0, errors.New("invalid month format, expected YYYY-MM")
	}

	monthEnd := t.AddDate(0, 1, 0)
	return t.UnixMilli(), monthEnd.UnixMilli(), nil
}
