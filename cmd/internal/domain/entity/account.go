package entity

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RolePatient Role = "patient"
)

var Roles = []Role{RoleAdmin, RoleStaff, RolePatient}

func (r Role) IsValid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Account struct {
	ID            string `gorm:"primaryKey;size:36"`
	SubUUID       string `gorm:"not null;uniqueIndex"` // identity provider subject
	Name          string `gorm:"not null"`
	Email         string `gorm:"not null;uniqueIndex"` // always lowercased
	Phone         string
	PasswordHash  string // local identity provider only
	EmailVerified bool   `gorm:"not null"`
	Role          Role   `gorm:"not null;default:patient"`
	CreatedAt     int64  `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt     int64  `gorm:"not null;autoUpdateTime:milli"`
}

func (a *Account) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}
