package domain

type UserID int64

type User struct {
	ID    UserID
	Name  string
	Email string
}

// ParticipantAccess is the access right a participant holds on a meeting.
type ParticipantAccess string

const (
	AccessRead  ParticipantAccess = "read"
	AccessWrite ParticipantAccess = "write"
)
