package models

// Case is a doctor-opened clinical record. Its detections are destroyed with
// it, and all of a doctor's cases are destroyed with the doctor.
type Case struct {
	BaseModel
	DoctorID    uint   `json:"doctorID" gorm:"not null;index"`
	Description string `json:"description" gorm:"type:text;not null"`

	// Optional demographic snippet about the patient the case concerns.
	PatientName        string `json:"patientName,omitempty" gorm:"type:varchar(100)"`
	PatientAge         int    `json:"patientAge,omitempty"`
	PatientGender      string `json:"patientGender,omitempty" gorm:"type:varchar(20)"`
	PatientNationality string `json:"patientNationality,omitempty" gorm:"type:varchar(60)"`

	Doctor     Doctor              `json:"-" gorm:"foreignKey:DoctorID;references:ID"`
	Detections []SyndromeDetection `json:"-" gorm:"foreignKey:CaseID"`
}

func (Case) TableName() string {
	return "cases"
}
