package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/service"
	"medibook/cmd/internal/utils/apierror"
	"medibook/cmd/internal/utils/validators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	appt, apierr := f.appts.CreateAppointment(ctx, booking("alice@x.com", slotTime), "")
	require.Nil(t, apierr)
	assert.Equal(t, "pending", appt.Status)
	assert.Empty(t, appt.NoteHistory)
	assert.Equal(t, "2025-03-10T10:00:00.000Z", appt.AppointmentTime)

	resp, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "approved", Notes: "Confirmed for 10am"}, f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.True(t, resp.NoteRecorded)
	assert.Equal(t, "approved", resp.Appointment.Status)
	require.Len(t, resp.Appointment.NoteHistory, 1)
	assert.Equal(t, "approval", resp.Note.Type)
	assert.Equal(t, "Confirmed for 10am", resp.Note.Content)
	assert.Equal(t, "staff", resp.Note.AddedBy)
	assert.Equal(t, f.staff.ID, resp.Note.AddedByID)

	// an approved appointment still holds the slot
	_, apierr = f.appts.CreateAppointment(ctx, booking("bob@x.com", slotTime), "")
	require.NotNil(t, apierr)
	assert.Equal(t, apierror.KindSlotConflict, apierr.Kind())
	assert.Equal(t, 400, apierr.Code())
	assert.Equal(t, "This time slot is already booked", apierr.Error())
}

func TestNoDoubleBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.book(t, "alice@example.com", slotTime)

	_, apierr := f.appts.CreateAppointment(ctx, booking("bob@example.com", slotTime), "")
	require.NotNil(t, apierr)
	assert.Equal(t, apierror.KindSlotConflict, apierr.Kind())

	// a millisecond later is a different slot
	f.book(t, "bob@example.com", "2025-03-10T10:00:00.001Z")

	_, apierr = f.appts.TransitionStatus(ctx, first.ID, &service.UpdateStatusRequest{Status: "cancelled", Notes: "patient called"}, f.admin.SubUUID)
	require.Nil(t, apierr)

	second := f.book(t, "bob@example.com", slotTime)
	assert.Equal(t, "pending", second.Status)
}

func TestConcurrentBookingsOfOneSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]apierror.ErrorResponse, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.appts.CreateAppointment(ctx, booking("alice@example.com", slotTime), "")
		}(i)
	}
	wg.Wait()

	booked := 0
	for _, apierr := range errs {
		if apierr == nil {
			booked++
			continue
		}
		assert.Equal(t, apierror.KindSlotConflict, apierr.Kind())
	}
	assert.Equal(t, 1, booked)

	all, apierr := f.appts.ListAll(ctx, f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.Len(t, all, 1)
}

func TestRejectionRequiresNotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", slotTime)

	for _, notes := range []string{"", "   ", "\t\n"} {
		_, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "rejected", Notes: notes}, f.staff.SubUUID)
		require.NotNil(t, apierr)
		assert.Equal(t, apierror.KindValidation, apierr.Kind())
		assert.Equal(t, apierror.RejectNotesError, apierr)
	}

	_, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "cancelled", Notes: " "}, f.admin.SubUUID)
	assert.Equal(t, apierror.CancelNotesError, apierr)

	stored := f.stored(t, appt.ID)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Empty(t, stored.NoteHistory)
}

func TestApprovalWithoutNotesUsesSentinel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", slotTime)

	resp, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "approved"}, f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.Equal(t, entity.NoNotesProvided, resp.Note.Content)
	assert.Equal(t, "", resp.Appointment.Notes)
}

func TestNoteLedgerIsOrdered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := booking("alice@example.com", slotTime)
	req.Notes = "first visit"
	appt, apierr := f.appts.CreateAppointment(ctx, req, f.alice.SubUUID)
	require.Nil(t, apierr)
	require.Len(t, appt.NoteHistory, 1)
	assert.Equal(t, "booking", appt.NoteHistory[0].Type)
	assert.Equal(t, "patient", appt.NoteHistory[0].AddedBy)
	assert.Equal(t, f.alice.ID, appt.NoteHistory[0].AddedByID)

	_, apierr = f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "approved", Notes: "see you"}, f.staff.SubUUID)
	require.Nil(t, apierr)
	_, apierr = f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "cancelled", Notes: "clinic closed"}, f.admin.SubUUID)
	require.Nil(t, apierr)

	got, apierr := f.appts.GetAppointment(ctx, appt.ID, f.alice.SubUUID)
	require.Nil(t, apierr)
	assert.Equal(t, "cancelled", got.Status)
	assert.Equal(t, "clinic closed", got.Notes)
	require.Len(t, got.NoteHistory, 3)

	want := []struct{ typ, content, by string }{
		{"booking", "first visit", "patient"},
		{"approval", "see you", "staff"},
		{"cancellation", "clinic closed", "admin"},
	}
	for i, w := range want {
		assert.Equal(t, w.typ, got.NoteHistory[i].Type)
		assert.Equal(t, w.content, got.NoteHistory[i].Content)
		assert.Equal(t, w.by, got.NoteHistory[i].AddedBy)
	}
}

func TestStatusEnumClosure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", slotTime)

	for _, status := range []string{"archived", "Approved", "done"} {
		_, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: status, Notes: "x"}, f.admin.SubUUID)
		assert.Equal(t, apierror.InvalidStatusError, apierr, status)
	}

	_, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "", Notes: "x"}, f.admin.SubUUID)
	require.NotNil(t, apierr)
	assert.Equal(t, apierror.KindValidation, apierr.Kind())

	// pending is a known status but never a legal target
	_, apierr = f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "pending"}, f.admin.SubUUID)
	assert.Equal(t, apierror.InvalidTransitionError, apierr)

	stored := f.stored(t, appt.ID)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Empty(t, stored.NoteHistory)
}

func TestTerminalStatusesAcceptNoMoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", slotTime)

	_, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "rejected", Notes: "no doctor"}, f.staff.SubUUID)
	require.Nil(t, apierr)

	_, apierr = f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "approved"}, f.staff.SubUUID)
	assert.Equal(t, apierror.InvalidTransitionError, apierr)

	_, apierr = f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "cancelled", Notes: "x"}, f.admin.SubUUID)
	assert.Equal(t, apierror.InvalidTransitionError, apierr)
}

func TestTransitionNotFound(t *testing.T) {
	f := newFixture(t)
	_, apierr := f.appts.TransitionStatus(context.Background(), "missing", &service.UpdateStatusRequest{Status: "approved"}, f.staff.SubUUID)
	assert.Equal(t, apierror.AppointmentNotFound, apierr)
}

func TestTransitionAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", slotTime)

	tests := []struct {
		name   string
		caller *entity.Account
		status string
		kind   apierror.Kind
	}{
		{"staff cannot cancel", f.staff, "cancelled", apierror.KindAuthorization},
		{"owner cannot approve", f.alice, "approved", apierror.KindAuthorization},
		{"owner cannot reject", f.alice, "rejected", apierror.KindAuthorization},
		{"other patient sees nothing", f.bob, "cancelled", apierror.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: tt.status, Notes: "because"}, tt.caller.SubUUID)
			require.NotNil(t, apierr)
			assert.Equal(t, tt.kind, apierr.Kind())
		})
	}

	_, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "approved"}, "")
	assert.Equal(t, apierror.InvalidAuthTokenError, apierr)

	resp, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "cancelled", Notes: "cannot make it"}, f.alice.SubUUID)
	require.Nil(t, apierr)
	assert.Equal(t, "patient", resp.Note.AddedBy)
	assert.Equal(t, entity.StatusCancelled, f.stored(t, appt.ID).Status)
}

// failingNotes refuses every append.
type failingNotes struct{}

func (failingNotes) Append(context.Context, *entity.Note) error {
	return errors.New("disk full")
}

func TestTransitionKeepsStatusWhenNoteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", slotTime)

	degraded := service.NewAppointmentService(f.apptRepo, failingNotes{}, f.accountRepo, validators.New(), nil)
	resp, apierr := degraded.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "approved", Notes: "ok"}, f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.False(t, resp.NoteRecorded)
	assert.Nil(t, resp.Note)
	assert.Contains(t, resp.Message, "note could not be recorded")

	stored := f.stored(t, appt.ID)
	assert.Equal(t, entity.StatusApproved, stored.Status)
	assert.Equal(t, "ok", stored.Notes)
	assert.Empty(t, stored.NoteHistory)
}

// staleAppointments loses every status write to a concurrent writer.
type staleAppointments struct {
	service.AppointmentRepository
}

func (staleAppointments) UpdateStatus(context.Context, *entity.Appointment, entity.Status) error {
	return entity.ErrStaleWrite
}

func TestBookingReportsNoteOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	plain, apierr := f.appts.CreateAppointment(ctx, booking("alice@example.com", slotTime), "")
	require.Nil(t, apierr)
	assert.Nil(t, plain.NoteRecorded)

	req := booking("bob@example.com", "2025-03-10T11:00:00Z")
	req.Notes = "first visit"
	noted, apierr := f.appts.CreateAppointment(ctx, req, "")
	require.Nil(t, apierr)
	require.NotNil(t, noted.NoteRecorded)
	assert.True(t, *noted.NoteRecorded)
	assert.Len(t, noted.NoteHistory, 1)

	degraded := service.NewAppointmentService(f.apptRepo, failingNotes{}, f.accountRepo, validators.New(), nil)
	req = booking("bob@example.com", "2025-03-10T12:00:00Z")
	req.Notes = "second visit"
	lost, apierr := degraded.CreateAppointment(ctx, req, "")
	require.Nil(t, apierr)
	require.NotNil(t, lost.NoteRecorded)
	assert.False(t, *lost.NoteRecorded)
	assert.Empty(t, lost.NoteHistory)

	// the booking itself stands
	stored := f.stored(t, lost.ID)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Equal(t, "second visit", stored.Notes)
}

func TestTransitionLosingRaceIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", slotTime)

	racing := service.NewAppointmentService(staleAppointments{f.apptRepo}, failingNotes{}, f.accountRepo, validators.New(), nil)
	_, apierr := racing.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "approved"}, f.staff.SubUUID)
	assert.Equal(t, apierror.StaleAppointmentError, apierr)
	assert.Equal(t, 409, apierr.Code())
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*service.CreateAppointmentRequest)
	}{
		{"missing name", func(r *service.CreateAppointmentRequest) { r.PatientName = "" }},
		{"blank name", func(r *service.CreateAppointmentRequest) { r.PatientName = "   " }},
		{"bad email", func(r *service.CreateAppointmentRequest) { r.Email = "alice" }},
		{"missing phone", func(r *service.CreateAppointmentRequest) { r.Phone = "" }},
		{"unknown treatment", func(r *service.CreateAppointmentRequest) { r.Treatment = "Surgery" }},
		{"lowercase treatment", func(r *service.CreateAppointmentRequest) { r.Treatment = "dental care" }},
		{"bad time", func(r *service.CreateAppointmentRequest) { r.AppointmentTime = "tomorrow" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := booking("alice@example.com", slotTime)
			tt.mutate(req)
			_, apierr := f.appts.CreateAppointment(ctx, req, "")
			require.NotNil(t, apierr)
			assert.Equal(t, apierror.KindValidation, apierr.Kind())
		})
	}
}

func TestCreateNormalizesAndLinksAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := booking("  Alice@Example.COM ", slotTime)
	req.Phone = "+60999"
	appt, apierr := f.appts.CreateAppointment(ctx, req, "")
	require.Nil(t, apierr)
	assert.Equal(t, "alice@example.com", appt.Email)
	require.NotNil(t, appt.AccountID)
	assert.Equal(t, f.alice.ID, *appt.AccountID)

	acct, err := f.accountRepo.FindByID(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "+60999", acct.Phone)

	// nobody with this email, nothing to link
	other, apierr := f.appts.CreateAppointment(ctx, booking("carol@example.com", "2025-03-10T11:00:00Z"), "")
	require.Nil(t, apierr)
	assert.Nil(t, other.AccountID)
}

func TestListVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.book(t, "alice@example.com", "2025-03-10T10:00:00Z")
	f.book(t, "alice@example.com", "2025-03-10T11:00:00Z")
	f.book(t, "bob@example.com", "2025-03-10T12:00:00Z")

	list, apierr := f.appts.ListByEmail(ctx, "alice@example.com", f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.Len(t, list, 2)
	for _, a := range list {
		assert.Equal(t, "alice@example.com", a.Email)
	}

	list, apierr = f.appts.ListByEmail(ctx, " ALICE@example.com", f.admin.SubUUID)
	require.Nil(t, apierr)
	assert.Len(t, list, 2)

	mine, apierr := f.appts.ListMine(ctx, f.bob.SubUUID)
	require.Nil(t, apierr)
	require.Len(t, mine, 1)
	assert.Equal(t, "bob@example.com", mine[0].Email)

	own, apierr := f.appts.ListByEmail(ctx, "", f.alice.SubUUID)
	require.Nil(t, apierr)
	assert.Len(t, own, 2)

	_, apierr = f.appts.ListByEmail(ctx, "alice@example.com", f.bob.SubUUID)
	assert.Equal(t, apierror.AccessDeniedError, apierr)

	_, apierr = f.appts.ListAll(ctx, f.alice.SubUUID)
	assert.Equal(t, apierror.AccessDeniedError, apierr)

	all, apierr := f.appts.ListAll(ctx, f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.Len(t, all, 3)

	_, apierr = f.appts.ListByEmail(ctx, "", f.staff.SubUUID)
	require.NotNil(t, apierr)
	assert.Equal(t, apierror.KindValidation, apierr.Kind())
}

func TestGetAppointmentHidesOtherPatients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", slotTime)

	_, apierr := f.appts.GetAppointment(ctx, appt.ID, f.alice.SubUUID)
	assert.Nil(t, apierr)
	_, apierr = f.appts.GetAppointment(ctx, appt.ID, f.staff.SubUUID)
	assert.Nil(t, apierr)
	_, apierr = f.appts.GetAppointment(ctx, appt.ID, f.bob.SubUUID)
	assert.Equal(t, apierror.AppointmentNotFound, apierr)
}

func TestListByStatusPassthrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", "2025-03-10T10:00:00Z")
	f.book(t, "bob@example.com", "2025-03-10T11:00:00Z")

	_, apierr := f.appts.TransitionStatus(ctx, appt.ID, &service.UpdateStatusRequest{Status: "approved"}, f.staff.SubUUID)
	require.Nil(t, apierr)

	approved, apierr := f.appts.ListByStatus(ctx, "approved", f.staff.SubUUID)
	require.Nil(t, apierr)
	require.Len(t, approved, 1)
	assert.Equal(t, appt.ID, approved[0].ID)
	assert.Len(t, approved[0].NoteHistory, 1)

	unknown, apierr := f.appts.ListByStatus(ctx, "archived", f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.Empty(t, unknown)

	_, apierr = f.appts.ListByStatus(ctx, "approved", f.alice.SubUUID)
	assert.Equal(t, apierror.AccessDeniedError, apierr)
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.book(t, "alice@example.com", "2025-03-10T10:00:00Z")
	second := f.book(t, "bob@example.com", "2025-03-10T11:00:00Z")

	_, apierr := f.appts.Reschedule(ctx, second.ID, &service.RescheduleRequest{AppointmentTime: "2025-03-10T10:00:00Z"}, f.staff.SubUUID)
	assert.Equal(t, apierror.SlotTakenError, apierr)

	// staying put is not a conflict with itself
	same, apierr := f.appts.Reschedule(ctx, second.ID, &service.RescheduleRequest{AppointmentTime: "2025-03-10T11:00:00Z"}, f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.Equal(t, second.AppointmentTime, same.AppointmentTime)

	moved, apierr := f.appts.Reschedule(ctx, second.ID, &service.RescheduleRequest{AppointmentTime: "2025-03-10T14:30:00Z"}, f.staff.SubUUID)
	require.Nil(t, apierr)
	assert.Equal(t, "2025-03-10T14:30:00.000Z", moved.AppointmentTime)

	_, apierr = f.appts.Reschedule(ctx, first.ID, &service.RescheduleRequest{AppointmentTime: "2025-03-10T15:00:00Z"}, f.alice.SubUUID)
	assert.Equal(t, apierror.AccessDeniedError, apierr)

	_, apierr = f.appts.TransitionStatus(ctx, first.ID, &service.UpdateStatusRequest{Status: "rejected", Notes: "full"}, f.staff.SubUUID)
	require.Nil(t, apierr)
	_, apierr = f.appts.Reschedule(ctx, first.ID, &service.RescheduleRequest{AppointmentTime: "2025-03-10T15:00:00Z"}, f.staff.SubUUID)
	require.NotNil(t, apierr)
	assert.Equal(t, apierror.KindValidation, apierr.Kind())
}

func TestAvailabilityAndCalendar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "alice@example.com", "2025-03-10T10:00:00Z")
	f.book(t, "bob@example.com", "2025-04-01T09:00:00Z")

	avail, apierr := f.appts.GetAvailability(ctx, "2025-03-10T10:00:00Z")
	require.Nil(t, apierr)
	assert.False(t, avail.Available)

	free, apierr := f.appts.CheckSlotAvailable(ctx, f.stored(t, appt.ID).AppointmentTime, appt.ID)
	require.Nil(t, apierr)
	assert.True(t, free, "an appointment does not conflict with itself")

	_, apierr = f.appts.GetAvailability(ctx, "soon")
	require.NotNil(t, apierr)
	assert.Equal(t, apierror.KindValidation, apierr.Kind())

	march := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cal, apierr := f.appts.GetCalendar(ctx, march.UnixMilli(), march.AddDate(0, 1, 0).UnixMilli())
	require.Nil(t, apierr)
	require.Len(t, cal.ScheduledSlots, 1)
	assert.Equal(t, "2025-03-10T10:00:00.000Z", cal.ScheduledSlots[0].BeginsAt)
	assert.Equal(t, "2025-03-10T10:30:00.000Z", cal.ScheduledSlots[0].EndsAt)
}

func TestStrictSlotPolicyOnBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	strict := service.NewAppointmentService(f.apptRepo, failingNotes{}, f.accountRepo, validators.New(), service.DefaultSlotPolicy(time.UTC))

	_, apierr := strict.CreateAppointment(ctx, booking("alice@example.com", slotTime), "")
	assert.Equal(t, apierror.AppointmentInPastError, apierr)
}
