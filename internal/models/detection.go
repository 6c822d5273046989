package models

import "time"

// SyndromeDetection records one detection event. Exactly one of CaseID and
// NormalUserID is set: case-linked detections are doctor-authored, the others
// are self-submitted. The detection_subject_check table constraint enforces
// the same rule at the storage layer.
type SyndromeDetection struct {
	BaseModel
	Result     string    `json:"result" gorm:"type:varchar(120);not null"`
	ImagePath  string    `json:"-" gorm:"type:text;not null"`
	ImageURL   string    `json:"imageURL" gorm:"type:text;not null"`
	DetectedAt time.Time `json:"detectedAt" gorm:"not null;index"`

	CaseID       *uint `json:"caseID,omitempty" gorm:"index"`
	NormalUserID *uint `json:"normalUserID,omitempty" gorm:"index"`

	Description string `json:"description" gorm:"type:text;not null"`

	// Mandatory for self-submitted detections, absent on case-linked ones.
	Name        string `json:"name,omitempty" gorm:"type:varchar(100)"`
	Age         int    `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty" gorm:"type:varchar(20)"`
	Nationality string `json:"nationality,omitempty" gorm:"type:varchar(60)"`

	Case       *Case       `json:"-" gorm:"foreignKey:CaseID;references:ID"`
	NormalUser *NormalUser `json:"-" gorm:"foreignKey:NormalUserID;references:ID"`
}

func (SyndromeDetection) TableName() string {
	return "syndrome_detections"
}
