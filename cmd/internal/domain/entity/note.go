package entity

type NoteType string

const (
	NoteBooking      NoteType = "booking"
	NoteApproval     NoteType = "approval"
	NoteRejection    NoteType = "rejection"
	NoteCancellation NoteType = "cancellation"
)

// NoNotesProvided is stored as the content of a ledger entry whose
// transition did not require notes and received none.
const NoNotesProvided = "No notes provided"

// Note is an immutable ledger entry attached to an appointment.
type Note struct {
	ID            string   `gorm:"primaryKey;size:36"`
	AppointmentID string   `gorm:"not null;size:36;uniqueIndex:idx_notes_appointment_position,priority:1"` // References: appointments(id)
	Position      int      `gorm:"not null;uniqueIndex:idx_notes_appointment_position,priority:2"`
	Type          NoteType `gorm:"not null"`
	Content       string   `gorm:"not null"`
	AddedBy       Role     `gorm:"not null"`
	AddedByID     string   `gorm:"size:36"` // References: accounts(id), empty for anonymous bookings
	CreatedAt     int64    `gorm:"not null;autoCreateTime:milli"`
}
