package repository

import (
	"context"
	"errors"

	"medibook/cmd/internal/domain/entity"

	"gorm.io/gorm"
)

type DefaultAppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *DefaultAppointmentRepository {
	return &DefaultAppointmentRepository{db: db}
}

// withHistory loads each appointment's note ledger in append order.
func withHistory(db *gorm.DB) *gorm.DB {
	return db.Preload("NoteHistory", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position asc")
	})
}

func (a *DefaultAppointmentRepository) Create(ctx context.Context, appt *entity.Appointment) error {
	err := a.db.WithContext(ctx).Omit("NoteHistory").Create(appt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return entity.ErrSlotTaken
	}
	return err
}

func (a *DefaultAppointmentRepository) FindByID(ctx context.Context, id string) (*entity.Appointment, error) {
	var appt entity.Appointment
	err := withHistory(a.db.WithContext(ctx)).Where("id = ?", id).First(&appt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (a *DefaultAppointmentRepository) FindAll(ctx context.Context) ([]*entity.Appointment, error) {
	var appts []*entity.Appointment
	err := withHistory(a.db.WithContext(ctx)).Order("created_at asc").Find(&appts).Error
	return appts, err
}

// FindByEmail expects an already normalized email.
func (a *DefaultAppointmentRepository) FindByEmail(ctx context.Context, email string) ([]*entity.Appointment, error) {
	var appts []*entity.Appointment
	err := withHistory(a.db.WithContext(ctx)).
		Where("email = ?", email).
		Order("created_at asc").
		Find(&appts).Error
	return appts, err
}

func (a *DefaultAppointmentRepository) FindByStatus(ctx context.Context, status string) ([]*entity.Appointment, error) {
	var appts []*entity.Appointment
	err := withHistory(a.db.WithContext(ctx)).
		Where("status = ?", status).
		Order("created_at asc").
		Find(&appts).Error
	return appts, err
}

// IsSlotTaken reports whether an active appointment other than excludeID
// sits at exactly the given instant.
func (a *DefaultAppointmentRepository) IsSlotTaken(ctx context.Context, at int64, excludeID string) (bool, error) {
	query := a.db.WithContext(ctx).Model(&entity.Appointment{}).
		Where("appointment_time = ?", at).
		Where("status IN ?", entity.ActiveStatuses)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindActiveBetween returns PARTIAL appointment entities, having only the
// `AppointmentTime` field, for active appointments in [from, to).
func (a *DefaultAppointmentRepository) FindActiveBetween(ctx context.Context, from, to int64) ([]*entity.Appointment, error) {
	var results []*entity.Appointment
	err := a.db.WithContext(ctx).Model(&entity.Appointment{}).
		Select("appointment_time").
		Where("status IN ?", entity.ActiveStatuses).
		Where("appointment_time >= ?", from).
		Where("appointment_time < ?", to).
		Order("appointment_time asc").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateStatus writes the status fields only if the appointment still holds
// the prior status it was read with.
func (a *DefaultAppointmentRepository) UpdateStatus(ctx context.Context, appt *entity.Appointment, prior entity.Status) error {
	res := a.db.WithContext(ctx).Model(&entity.Appointment{}).
		Where("id = ? AND status = ?", appt.ID, prior).
		Updates(map[string]any{
			"status":     appt.Status,
			"notes":      appt.Notes,
			"updated_at": appt.UpdatedAt,
		})
	return checkUpdate(res)
}

func (a *DefaultAppointmentRepository) UpdateTime(ctx context.Context, appt *entity.Appointment) error {
	res := a.db.WithContext(ctx).Model(&entity.Appointment{}).
		Where("id = ? AND status = ?", appt.ID, appt.Status).
		Updates(map[string]any{
			"appointment_time": appt.AppointmentTime,
			"updated_at":       appt.UpdatedAt,
		})
	return checkUpdate(res)
}

func checkUpdate(res *gorm.DB) error {
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return entity.ErrSlotTaken
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return entity.ErrStaleWrite
	}
	return nil
}
