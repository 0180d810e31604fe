package domain

import "time"

type ReportID int64

// Report is only the subject of fan-out notifications here; its lifecycle
// is owned by the records application.
type Report struct {
	ID             ReportID
	Code           string
	ReportableType string
	ReportableID   int64
	CreatedBy      UserID
	CreatedAt      time.Time
}
