package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/utils"
	"medibook/cmd/internal/utils/apierror"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

type AppointmentRepository interface {
	Create(ctx context.Context, appt *entity.Appointment) error
	FindByID(ctx context.Context, id string) (*entity.Appointment, error)
	FindAll(ctx context.Context) ([]*entity.Appointment, error)
	FindByEmail(ctx context.Context, email string) ([]*entity.Appointment, error)
	FindByStatus(ctx context.Context, status string) ([]*entity.Appointment, error)
	IsSlotTaken(ctx context.Context, at int64, excludeID string) (bool, error)
	FindActiveBetween(ctx context.Context, from, to int64) ([]*entity.Appointment, error)
	UpdateStatus(ctx context.Context, appt *entity.Appointment, prior entity.Status) error
	UpdateTime(ctx context.Context, appt *entity.Appointment) error
}

type NoteRepository interface {
	Append(ctx context.Context, note *entity.Note) error
}

type CreateAppointmentRequest struct {
	PatientName     string `json:"patientName" validate:"required,notblank,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required,notblank,max=32"`
	Treatment       string `json:"treatment" validate:"required,treatment"`
	AppointmentTime string `json:"appointmentTime" validate:"required,iso8601"`
	Notes           string `json:"notes" validate:"max=1000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=1000"`
}

type RescheduleRequest struct {
	AppointmentTime string `json:"appointmentTime" validate:"required,iso8601"`
}

type NoteResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	AddedBy   string `json:"addedBy"`
	AddedByID string `json:"addedById,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type AppointmentResponse struct {
	ID              string          `json:"id"`
	PatientName     string          `json:"patientName"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Treatment       string          `json:"treatment"`
	AppointmentTime string          `json:"appointmentTime"`
	Status          string          `json:"status"`
	Notes           string          `json:"notes"`
	AccountID       *string         `json:"accountId,omitempty"`
	NoteHistory     []*NoteResponse `json:"noteHistory"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
	// NoteRecorded is only set on a booking that came with notes.
	NoteRecorded *bool `json:"noteRecorded,omitempty"`
}

type StatusUpdateResponse struct {
	Message      string               `json:"message"`
	Appointment  *AppointmentResponse `json:"appointment"`
	Note         *NoteResponse        `json:"note,omitempty"`
	NoteRecorded bool                 `json:"noteRecorded"`
}

type ScheduledSlot struct {
	BeginsAt string `json:"beginsAt"`
	EndsAt   string `json:"endsAt"`
}

type CalendarResponse struct {
	ScheduledSlots []*ScheduledSlot `json:"scheduledSlots"`
}

type AvailabilityResponse struct {
	AppointmentTime string `json:"appointmentTime"`
	Available       bool   `json:"available"`
}

type DefaultAppointmentService struct {
	AppointmentRepo AppointmentRepository
	NoteRepo        NoteRepository
	AccountRepo     AccountRepository
	Validate        *validator.Validate
	Slots           *SlotPolicy
	SlotLength      time.Duration
}

func NewAppointmentService(apptRepo AppointmentRepository, noteRepo NoteRepository, accountRepo AccountRepository, validate *validator.Validate, slots *SlotPolicy) *DefaultAppointmentService {
	length := 30 * time.Minute
	if slots != nil {
		length = slots.Step
	}
	return &DefaultAppointmentService{
		AppointmentRepo: apptRepo,
		NoteRepo:        noteRepo,
		AccountRepo:     accountRepo,
		Validate:        validate,
		Slots:           slots,
		SlotLength:      length,
	}
}

// CheckSlotAvailable reports whether no active appointment other than
// excludeID holds the exact instant at.
func (a *DefaultAppointmentService) CheckSlotAvailable(ctx context.Context, at int64, excludeID string) (bool, apierror.ErrorResponse) {
	taken, err := a.AppointmentRepo.IsSlotTaken(ctx, at, excludeID)
	if err != nil {
		log.Errorf("failed to check if time %d is available: %v", at, err)
		return false, apierror.InternalServerError
	}
	return !taken, nil
}

func (a *DefaultAppointmentService) GetAvailability(ctx context.Context, rawTime string) (*AvailabilityResponse, apierror.ErrorResponse) {
	at, err := utils.FromEpoch(rawTime)
	if err != nil {
		return nil, apierror.NewInvalidParamTypeError("time", "RFC 3339 timestamp")
	}

	available, apierr := a.CheckSlotAvailable(ctx, at, "")
	if apierr != nil {
		return nil, apierr
	}
	return &AvailabilityResponse{AppointmentTime: utils.FormatEpoch(at), Available: available}, nil
}

// CreateAppointment books a pending appointment. Bookings may be anonymous,
// subId is empty in that case.
func (a *DefaultAppointmentService) CreateAppointment(ctx context.Context, req *CreateAppointmentRequest, subId string) (*AppointmentResponse, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := a.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}
	req.Email = utils.NormalizeEmail(req.Email)

	at, err := utils.FromEpoch(req.AppointmentTime)
	if err != nil {
		return nil, apierror.MalformedBodyError
	}

	now := utils.NowUTC()
	if apierr := a.Slots.Check(at, now); apierr != nil {
		return nil, apierr
	}

	caller, apierr := a.optionalCaller(ctx, subId)
	if apierr != nil {
		return nil, apierr
	}

	available, apierr := a.CheckSlotAvailable(ctx, at, "")
	if apierr != nil {
		return nil, apierr
	}
	if !available {
		return nil, apierror.SlotTakenError
	}

	owner, err := a.AccountRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		log.Errorf("failed to look up account for %s: %v", req.Email, err)
		return nil, apierror.InternalServerError
	}

	appt := &entity.Appointment{
		ID:              uuid.NewString(),
		PatientName:     req.PatientName,
		Email:           req.Email,
		Phone:           req.Phone,
		Treatment:       entity.Treatment(req.Treatment),
		AppointmentTime: at,
		Status:          entity.StatusPending,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if owner != nil {
		appt.AccountID = &owner.ID
	}

	err = a.AppointmentRepo.Create(ctx, appt)
	if errors.Is(err, entity.ErrSlotTaken) {
		// lost the race against a concurrent booking
		return nil, apierror.SlotTakenError
	}
	if err != nil {
		log.Errorf("failed to save appointment: %v", err)
		return nil, apierror.InternalServerError
	}

	var noteRecorded *bool
	if !utils.IsBlank(req.Notes) {
		recorded := true
		note := newNote(appt.ID, entity.NoteBooking, req.Notes, caller)
		if err := a.NoteRepo.Append(ctx, note); err != nil {
			log.Errorf("appointment %s booked but its note was not recorded: %v", appt.ID, err)
			recorded = false
		} else {
			appt.NoteHistory = append(appt.NoteHistory, *note)
		}
		noteRecorded = &recorded
	}

	if owner != nil && owner.Phone != req.Phone {
		owner.Phone = req.Phone
		owner.UpdatedAt = now
		if err := a.AccountRepo.Save(ctx, owner); err != nil {
			log.Errorf("failed to update phone of account %s: %v", owner.ID, err)
		}
	}

	resp := toAppointmentResponse(appt)
	resp.NoteRecorded = noteRecorded
	return resp, nil
}

// TransitionStatus moves an appointment to a new status and records the
// matching ledger note. The status write is guarded by the status it was
// read with, and a failed note write does not undo it.
func (a *DefaultAppointmentService) TransitionStatus(ctx context.Context, id string, req *UpdateStatusRequest, subId string) (*StatusUpdateResponse, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := a.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}

	target := entity.Status(req.Status)
	if !target.IsValid() {
		return nil, apierror.InvalidStatusError
	}
	if target.RequiresNotes() && utils.IsBlank(req.Notes) {
		if target == entity.StatusRejected {
			return nil, apierror.RejectNotesError
		}
		return nil, apierror.CancelNotesError
	}

	caller, apierr := a.requireCaller(ctx, subId)
	if apierr != nil {
		return nil, apierr
	}

	appt, apierr := a.visibleAppointment(ctx, id, caller)
	if apierr != nil {
		return nil, apierr
	}

	if apierr := authorizeTransition(caller, appt, target); apierr != nil {
		return nil, apierr
	}

	prior := appt.Status
	if !prior.CanTransition(target) {
		return nil, apierror.InvalidTransitionError
	}

	if target.IsActive() && !prior.IsActive() {
		available, apierr := a.CheckSlotAvailable(ctx, appt.AppointmentTime, appt.ID)
		if apierr != nil {
			return nil, apierr
		}
		if !available {
			return nil, apierror.SlotTakenError
		}
	}

	appt.Status = target
	appt.Notes = req.Notes
	appt.UpdatedAt = utils.NowUTC()

	err := a.AppointmentRepo.UpdateStatus(ctx, appt, prior)
	switch {
	case errors.Is(err, entity.ErrStaleWrite):
		return nil, apierror.StaleAppointmentError
	case errors.Is(err, entity.ErrSlotTaken):
		return nil, apierror.SlotTakenError
	case err != nil:
		log.Errorf("failed to update status of appointment %s: %v", appt.ID, err)
		return nil, apierror.InternalServerError
	}

	noteType, _ := target.NoteType()
	content := req.Notes
	if utils.IsBlank(content) {
		content = entity.NoNotesProvided
	}

	note := newNote(appt.ID, noteType, content, caller)
	if err := a.NoteRepo.Append(ctx, note); err != nil {
		log.Errorf("status of appointment %s changed to %s but its note was not recorded: %v", appt.ID, target, err)
		return &StatusUpdateResponse{
			Message:      fmt.Sprintf("Appointment %s, but the note could not be recorded", target),
			Appointment:  toAppointmentResponse(appt),
			NoteRecorded: false,
		}, nil
	}

	appt.NoteHistory = append(appt.NoteHistory, *note)
	return &StatusUpdateResponse{
		Message:      fmt.Sprintf("Appointment %s", target),
		Appointment:  toAppointmentResponse(appt),
		Note:         toNoteResponse(note),
		NoteRecorded: true,
	}, nil
}

// Reschedule moves an active appointment to another instant. The
// appointment's own slot does not count as a conflict.
func (a *DefaultAppointmentService) Reschedule(ctx context.Context, id string, req *RescheduleRequest, subId string) (*AppointmentResponse, apierror.ErrorResponse) {
	utils.Sanitize(req)
	if err := a.Validate.Struct(req); err != nil {
		return nil, apierror.FromValidationError(err)
	}

	at, err := utils.FromEpoch(req.AppointmentTime)
	if err != nil {
		return nil, apierror.MalformedBodyError
	}

	caller, apierr := a.requireCaller(ctx, subId)
	if apierr != nil {
		return nil, apierr
	}
	if apierr := Authorize(caller.Role, ActionReschedule); apierr != nil {
		return nil, apierr
	}

	appt, apierr := a.visibleAppointment(ctx, id, caller)
	if apierr != nil {
		return nil, apierr
	}
	if !appt.Status.IsActive() {
		return nil, apierror.NewValidation("Only pending or approved appointments can be rescheduled")
	}

	now := utils.NowUTC()
	if apierr := a.Slots.Check(at, now); apierr != nil {
		return nil, apierr
	}
	if at == appt.AppointmentTime {
		return toAppointmentResponse(appt), nil
	}

	available, apierr := a.CheckSlotAvailable(ctx, at, appt.ID)
	if apierr != nil {
		return nil, apierr
	}
	if !available {
		return nil, apierror.SlotTakenError
	}

	appt.AppointmentTime = at
	appt.UpdatedAt = now
	err = a.AppointmentRepo.UpdateTime(ctx, appt)
	switch {
	case errors.Is(err, entity.ErrSlotTaken):
		return nil, apierror.SlotTakenError
	case errors.Is(err, entity.ErrStaleWrite):
		return nil, apierror.StaleAppointmentError
	case err != nil:
		log.Errorf("failed to reschedule appointment %s: %v", appt.ID, err)
		return nil, apierror.InternalServerError
	}
	return toAppointmentResponse(appt), nil
}

func (a *DefaultAppointmentService) ListAll(ctx context.Context, subId string) ([]*AppointmentResponse, apierror.ErrorResponse) {
	caller, apierr := a.requireCaller(ctx, subId)
	if apierr != nil {
		return nil, apierr
	}
	if apierr := Authorize(caller.Role, ActionViewAll); apierr != nil {
		return nil, apierr
	}

	appts, err := a.AppointmentRepo.FindAll(ctx)
	if err != nil {
		log.Errorf("failed to fetch all appointments: %v", err)
		return nil, apierror.InternalServerError
	}
	return toAppointmentResponses(appts), nil
}

// ListByStatus passes status through unchecked, an unknown status simply
// matches nothing.
func (a *DefaultAppointmentService) ListByStatus(ctx context.Context, status, subId string) ([]*AppointmentResponse, apierror.ErrorResponse) {
	caller, apierr := a.requireCaller(ctx, subId)
	if apierr != nil {
		return nil, apierr
	}
	if apierr := Authorize(caller.Role, ActionViewAll); apierr != nil {
		return nil, apierr
	}

	appts, err := a.AppointmentRepo.FindByStatus(ctx, status)
	if err != nil {
		log.Errorf("failed to fetch appointments with status %q: %v", status, err)
		return nil, apierror.InternalServerError
	}
	return toAppointmentResponses(appts), nil
}

// ListByEmail lets staff look up any patient. Patients may only ask for
// their own email, an empty email means the caller's.
func (a *DefaultAppointmentService) ListByEmail(ctx context.Context, email, subId string) ([]*AppointmentResponse, apierror.ErrorResponse) {
	caller, apierr := a.requireCaller(ctx, subId)
	if apierr != nil {
		return nil, apierr
	}

	email = utils.NormalizeEmail(email)
	if !Can(caller.Role, ActionViewAll) {
		if email != "" && email != caller.Email {
			return nil, apierror.AccessDeniedError
		}
		email = caller.Email
	}
	if email == "" {
		return nil, apierror.NewMissingParamError("email")
	}
	return a.findByEmail(ctx, email)
}

// ListMine returns the caller's own appointments whatever their role.
func (a *DefaultAppointmentService) ListMine(ctx context.Context, subId string) ([]*AppointmentResponse, apierror.ErrorResponse) {
	caller, apierr := a.requireCaller(ctx, subId)
	if apierr != nil {
		return nil, apierr
	}
	return a.findByEmail(ctx, caller.Email)
}

func (a *DefaultAppointmentService) findByEmail(ctx context.Context, email string) ([]*AppointmentResponse, apierror.ErrorResponse) {
	appts, err := a.AppointmentRepo.FindByEmail(ctx, email)
	if err != nil {
		log.Errorf("failed to fetch appointments for %s: %v", email, err)
		return nil, apierror.InternalServerError
	}
	return toAppointmentResponses(appts), nil
}

func (a *DefaultAppointmentService) GetAppointment(ctx context.Context, id, subId string) (*AppointmentResponse, apierror.ErrorResponse) {
	caller, apierr := a.requireCaller(ctx, subId)
	if apierr != nil {
		return nil, apierr
	}

	appt, apierr := a.visibleAppointment(ctx, id, caller)
	if apierr != nil {
		return nil, apierr
	}
	return toAppointmentResponse(appt), nil
}

// GetCalendar lists the occupied slots in [from, to) without revealing who
// holds them.
func (a *DefaultAppointmentService) GetCalendar(ctx context.Context, from, to int64) (*CalendarResponse, apierror.ErrorResponse) {
	appts, err := a.AppointmentRepo.FindActiveBetween(ctx, from, to)
	if err != nil {
		log.Errorf("failed to fetch appointments availability [%d - %d]: %v", from, to, err)
		return nil, apierror.InternalServerError
	}

	slots := make([]*ScheduledSlot, len(appts))
	for i, appt := range appts {
		slots[i] = &ScheduledSlot{
			BeginsAt: utils.FormatEpoch(appt.AppointmentTime),
			EndsAt:   utils.FormatEpoch(appt.AppointmentTime + a.SlotLength.Milliseconds()),
		}
	}
	return &CalendarResponse{ScheduledSlots: slots}, nil
}

func (a *DefaultAppointmentService) requireCaller(ctx context.Context, subId string) (*entity.Account, apierror.ErrorResponse) {
	return fetchCaller(ctx, a.AccountRepo, subId)
}

// optionalCaller resolves the caller of a request that may be anonymous.
func (a *DefaultAppointmentService) optionalCaller(ctx context.Context, subId string) (*entity.Account, apierror.ErrorResponse) {
	if subId == "" {
		return nil, nil
	}
	caller, apierr := a.requireCaller(ctx, subId)
	if apierr != nil && apierr.Kind() == apierror.KindUnauthenticated {
		return nil, nil
	}
	return caller, apierr
}

// visibleAppointment loads an appointment the caller is allowed to see.
// Appointments of other patients look absent.
func (a *DefaultAppointmentService) visibleAppointment(ctx context.Context, id string, caller *entity.Account) (*entity.Appointment, apierror.ErrorResponse) {
	appt, err := a.AppointmentRepo.FindByID(ctx, id)
	if err != nil {
		log.Errorf("failed to fetch appointment by id %s: %v", id, err)
		return nil, apierror.InternalServerError
	}
	if appt == nil {
		return nil, apierror.AppointmentNotFound
	}
	if !Can(caller.Role, ActionViewAll) && !isOwner(caller, appt) {
		return nil, apierror.AppointmentNotFound
	}
	return appt, nil
}

func authorizeTransition(caller *entity.Account, appt *entity.Appointment, target entity.Status) apierror.ErrorResponse {
	if target == entity.StatusCancelled && isOwner(caller, appt) && Can(caller.Role, ActionCancelOwn) {
		return nil
	}
	action, ok := transitionActions[target]
	if !ok {
		// nothing moves back to pending, whoever asks
		return apierror.InvalidTransitionError
	}
	return Authorize(caller.Role, action)
}

func isOwner(caller *entity.Account, appt *entity.Appointment) bool {
	if appt.AccountID != nil && *appt.AccountID == caller.ID {
		return true
	}
	return appt.Email == caller.Email
}

func newNote(appointmentID string, typ entity.NoteType, content string, author *entity.Account) *entity.Note {
	note := &entity.Note{
		ID:            uuid.NewString(),
		AppointmentID: appointmentID,
		Type:          typ,
		Content:       content,
		AddedBy:       entity.RolePatient,
		CreatedAt:     utils.NowUTC(),
	}
	if author != nil {
		note.AddedBy = author.Role
		note.AddedByID = author.ID
	}
	return note
}

func toAppointmentResponses(appts []*entity.Appointment) []*AppointmentResponse {
	resp := make([]*AppointmentResponse, len(appts))
	for i, appt := range appts {
		resp[i] = toAppointmentResponse(appt)
	}
	return resp
}

func toAppointmentResponse(appt *entity.Appointment) *AppointmentResponse {
	history := make([]*NoteResponse, len(appt.NoteHistory))
	for i := range appt.NoteHistory {
		history[i] = toNoteResponse(&appt.NoteHistory[i])
	}
	return &AppointmentResponse{
		ID:              appt.ID,
		PatientName:     appt.PatientName,
		Email:           appt.Email,
		Phone:           appt.Phone,
		Treatment:       string(appt.Treatment),
		AppointmentTime: utils.FormatEpoch(appt.AppointmentTime),
		Status:          string(appt.Status),
		Notes:           appt.Notes,
		AccountID:       appt.AccountID,
		NoteHistory:     history,
		CreatedAt:       utils.FormatEpoch(appt.CreatedAt),
		UpdatedAt:       utils.FormatEpoch(appt.UpdatedAt),
	}
}

func toNoteResponse(note *entity.Note) *NoteResponse {
	return &NoteResponse{
		ID:        note.ID,
		Type:      string(note.Type),
		Content:   note.Content,
		AddedBy:   string(note.AddedBy),
		AddedByID: note.AddedByID,
		CreatedAt: utils.FormatEpoch(note.CreatedAt),
	}
}
