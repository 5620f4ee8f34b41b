package service_test

import (
	"context"
	"testing"
	"time"

	"medibook/cmd/internal/auth"
	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/domain/gormdb/gormdbtest"
	"medibook/cmd/internal/domain/gormdb/repository"
	"medibook/cmd/internal/service"
	"medibook/cmd/internal/utils/validators"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const slotTime = "2025-03-10T10:00:00Z"

// fixture wires both services to a fresh database holding one account per
// role plus a second patient.
type fixture struct {
	appts    *service.DefaultAppointmentService
	accounts *service.DefaultAccountService

	apptRepo    *repository.DefaultAppointmentRepository
	accountRepo *repository.DefaultAccountRepository

	admin, staff, alice, bob *entity.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := gormdbtest.New(t)
	validate := validators.New()

	f := &fixture{
		apptRepo:    repository.NewAppointmentRepository(db),
		accountRepo: repository.NewAccountRepository(db),
	}
	f.appts = service.NewAppointmentService(f.apptRepo, repository.NewNoteRepository(db), f.accountRepo, validate, nil)
	f.accounts = service.NewAccountService(f.accountRepo, validate, auth.NewLocalProvider(), auth.NewIssuer("test-secret", time.Hour))

	f.admin = f.account(t, "Admin", "admin@clinic.test", entity.RoleAdmin)
	f.staff = f.account(t, "Staff", "staff@clinic.test", entity.RoleStaff)
	f.alice = f.account(t, "Alice", "alice@example.com", entity.RolePatient)
	f.bob = f.account(t, "Bob", "bob@example.com", entity.RolePatient)
	return f
}

func (f *fixture) account(t *testing.T, name, email string, role entity.Role) *entity.Account {
	t.Helper()
	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)

	acct := &entity.Account{
		ID:            uuid.NewString(),
		SubUUID:       uuid.NewString(),
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: true,
		Role:          role,
	}
	require.NoError(t, f.accountRepo.Create(context.Background(), acct))
	return acct
}

func booking(email, at string) *service.CreateAppointmentRequest {
	return &service.CreateAppointmentRequest{
		PatientName:     "Alice",
		Email:           email,
		Phone:           "+60123456789",
		Treatment:       "Dental Care",
		AppointmentTime: at,
	}
}

// book creates an appointment anonymously and fails the test on error.
func (f *fixture) book(t *testing.T, email, at string) *service.AppointmentResponse {
	t.Helper()
	appt, apierr := f.appts.CreateAppointment(context.Background(), booking(email, at), "")
	require.Nil(t, apierr)
	return appt
}

func (f *fixture) stored(t *testing.T, id string) *entity.Appointment {
	t.Helper()
	appt, err := f.apptRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, appt)
	return appt
}
