package repository

import (
	"medibook/cmd/internal/domain/entity"
)

type appointmentDocument struct {
	ID              string   `bson:"_id"`
	PatientName     string   `bson:"patientName"`
	Email           string   `bson:"email"`
	Phone           string   `bson:"phone"`
	Treatment       string   `bson:"treatment"`
	AppointmentTime int64    `bson:"appointmentTime"`
	Status          string   `bson:"status"`
	Active          bool     `bson:"active"`
	Notes           string   `bson:"notes,omitempty"`
	AccountID       *string  `bson:"accountId,omitempty"`
	NoteHistory     []string `bson:"noteHistory"` // References: notes(_id), in ledger order
	CreatedAt       int64    `bson:"createdAt"`
	UpdatedAt       int64    `bson:"updatedAt"`
}

type noteDocument struct {
	ID            string `bson:"_id"`
	AppointmentID string `bson:"appointmentId"`
	Position      int    `bson:"position"`
	Type          string `bson:"type"`
	Content       string `bson:"content"`
	AddedBy       string `bson:"addedBy"`
	AddedByID     string `bson:"addedById,omitempty"`
	CreatedAt     int64  `bson:"createdAt"`
}

type accountDocument struct {
	ID            string `bson:"_id"`
	SubUUID       string `bson:"subUuid"`
	Name          string `bson:"name"`
	Email         string `bson:"email"`
	Phone         string `bson:"phone,omitempty"`
	PasswordHash  string `bson:"passwordHash,omitempty"`
	EmailVerified bool   `bson:"emailVerified"`
	Role          string `bson:"role"`
	CreatedAt     int64  `bson:"createdAt"`
	UpdatedAt     int64  `bson:"updatedAt"`
}

func toAppointmentDocument(a *entity.Appointment) *appointmentDocument {
	return &appointmentDocument{
		ID:              a.ID,
		PatientName:     a.PatientName,
		Email:           a.Email,
		Phone:           a.Phone,
		Treatment:       string(a.Treatment),
		AppointmentTime: a.AppointmentTime,
		Status:          string(a.Status),
		Active:          a.Status.IsActive(),
		Notes:           a.Notes,
		AccountID:       a.AccountID,
		NoteHistory:     []string{},
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func (d *appointmentDocument) toEntity(history []entity.Note) *entity.Appointment {
	return &entity.Appointment{
		ID:              d.ID,
		PatientName:     d.PatientName,
		Email:           d.Email,
		Phone:           d.Phone,
		Treatment:       entity.Treatment(d.Treatment),
		AppointmentTime: d.AppointmentTime,
		Status:          entity.Status(d.Status),
		Notes:           d.Notes,
		AccountID:       d.AccountID,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		NoteHistory:     history,
	}
}

func toNoteDocument(n *entity.Note) *noteDocument {
	return &noteDocument{
		ID:            n.ID,
		AppointmentID: n.AppointmentID,
		Position:      n.Position,
		Type:          string(n.Type),
		Content:       n.Content,
		AddedBy:       string(n.AddedBy),
		AddedByID:     n.AddedByID,
		CreatedAt:     n.CreatedAt,
	}
}

func (d *noteDocument) toEntity() entity.Note {
	return entity.Note{
		ID:            d.ID,
		AppointmentID: d.AppointmentID,
		Position:      d.Position,
		Type:          entity.NoteType(d.Type),
		Content:       d.Content,
		AddedBy:       entity.Role(d.AddedBy),
		AddedByID:     d.AddedByID,
		CreatedAt:     d.CreatedAt,
	}
}

func toAccountDocument(a *entity.Account) *accountDocument {
	return &accountDocument{
		ID:            a.ID,
		SubUUID:       a.SubUUID,
		Name:          a.Name,
		Email:         a.Email,
		Phone:         a.Phone,
		PasswordHash:  a.PasswordHash,
		EmailVerified: a.EmailVerified,
		Role:          string(a.Role),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (d *accountDocument) toEntity() *entity.Account {
	return &entity.Account{
		ID:            d.ID,
		SubUUID:       d.SubUUID,
		Name:          d.Name,
		Email:         d.Email,
		Phone:         d.Phone,
		PasswordHash:  d.PasswordHash,
		EmailVerified: d.EmailVerified,
		Role:          entity.Role(d.Role),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
