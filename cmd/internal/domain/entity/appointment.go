package entity

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status an appointment can hold.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusCancelled}

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []Status{StatusPending, StatusApproved}

func (s Status) IsValid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsActive reports whether an appointment in this status holds its slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusApproved
}

// transitions holds the legal moves out of each status. Rejected and
// cancelled appointments are kept for audit and accept no further moves.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCancelled},
}

// CanTransition reports whether an appointment may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// RequiresNotes reports whether moving into s needs a non-empty note.
func (s Status) RequiresNotes() bool {
	return s == StatusRejected || s == StatusCancelled
}

// NoteType returns the ledger entry type recorded when moving into s.
func (s Status) NoteType() (NoteType, bool) {
	switch s {
	case StatusApproved:
		return NoteApproval, true
	case StatusRejected:
		return NoteRejection, true
	case StatusCancelled:
		return NoteCancellation, true
	}
	return "", false
}

type Treatment string

const (
	TreatmentGeneralCheckup Treatment = "General Checkup"
	TreatmentDentalCare     Treatment = "Dental Care"
	TreatmentPhysiotherapy  Treatment = "Physiotherapy"
	TreatmentPediatricCare  Treatment = "Pediatric Care"
	TreatmentVaccination    Treatment = "Vaccination"
	TreatmentGeriatricCare  Treatment = "Geriatric Care"
)

var Treatments = []Treatment{
	TreatmentGeneralCheckup,
	TreatmentDentalCare,
	TreatmentPhysiotherapy,
	TreatmentPediatricCare,
	TreatmentVaccination,
	TreatmentGeriatricCare,
}

func (t Treatment) IsValid() bool {
	for _, tr := range Treatments {
		if t == tr {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID              string    `gorm:"primaryKey;size:36"`
	PatientName     string    `gorm:"not null"`
	Email           string    `gorm:"not null;index"`
	Phone           string    `gorm:"not null"`
	Treatment       Treatment `gorm:"not null"`
	AppointmentTime int64     `gorm:"not null;index:idx_appointments_time_status,priority:1"`
	Status          Status    `gorm:"not null;default:pending;index:idx_appointments_time_status,priority:2"`
	Notes           string
	AccountID       *string `gorm:"size:36"` // References: accounts(id), resolved by email
	CreatedAt       int64   `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt       int64   `gorm:"not null;autoUpdateTime:milli"`

	// Relations
	NoteHistory []Note `gorm:"foreignKey:AppointmentID"`
}
