package models

type ReportReason string

const (
	ReportHarassment     ReportReason = "HARASSMENT"
	ReportSelfHarm       ReportReason = "SELF_HARM"
	ReportViolence       ReportReason = "VIOLENCE"
	ReportUnderage       ReportReason = "UNDERAGE"
	ReportNonConsensual  ReportReason = "NON_CONSENSUAL"
	ReportScam           ReportReason = "SCAM"
	ReportCopyright      ReportReason = "COPYRIGHT"
	ReportIllegalContent ReportReason = "ILLEGAL_CONTENT"
)

type ReportStatus string

const (
	ReportOpen      ReportStatus = "OPEN"
	ReportResolved  ReportStatus = "RESOLVED"
	ReportDismissed ReportStatus = "DISMISSED"
)

// Report is a moderation flag raised by a user on a post and handled in the back-office.
type Report struct {
	Base
	PostID     string       `json:"postId" gorm:"type:uuid;uniqueIndex:idx_reports_pair;not null"`
	ReportedBy string       `json:"reportedBy" gorm:"type:uuid;uniqueIndex:idx_reports_pair;not null"`
	Reason     ReportReason `json:"reason" gorm:"type:varchar(30);not null"`
	Status     ReportStatus `json:"status" gorm:"type:varchar(20);default:'OPEN'"`
}

type ReportCreate struct {
	Reason ReportReason `json:"reason" binding:"required,oneof=HARASSMENT SELF_HARM VIOLENCE UNDERAGE NON_CONSENSUAL SCAM COPYRIGHT ILLEGAL_CONTENT"`
}

type ReportStatusUpdate struct {
	Status ReportStatus `json:"status" binding:"required,oneof=RESOLVED DISMISSED"`
}

func (Report) TableName() string {
	return "reports"
}
