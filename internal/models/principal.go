package models

type PrincipalKind string

const (
	KindAdmin      PrincipalKind = "admin"
	KindDoctor     PrincipalKind = "doctor"
	KindNormalUser PrincipalKind = "normal_user"
)

// Principal is the authenticated actor reconstructed from a verified token.
// It never carries the credential hash.
type Principal struct {
	Kind  PrincipalKind `json:"kind"`
	ID    uint          `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
}

// The three principal kinds live in disjoint tables. Email uniqueness is
// enforced per table, not globally; login resolution order handles overlap.

type Admin struct {
	BaseModel
	Name         string `json:"name" gorm:"type:varchar(100);not null"`
	Email        string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"type:text;not null"`
}

func (Admin) TableName() string {
	return "admins"
}

type Doctor struct {
	BaseModel
	Name         string `json:"name" gorm:"type:varchar(100);not null"`
	Email        string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"type:text;not null"`
	Phone        string `json:"phone" gorm:"type:varchar(30);not null"`
	ImagePath    string `json:"-" gorm:"type:text;not null"`
	ImageURL     string `json:"imageURL" gorm:"type:text;not null"`
	Cases        []Case `json:"-" gorm:"foreignKey:DoctorID"`
}

func (Doctor) TableName() string {
	return "doctors"
}

type NormalUser struct {
	BaseModel
	Name         string              `json:"name" gorm:"type:varchar(100);not null"`
	Email        string              `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string              `json:"-" gorm:"type:text;not null"`
	Phone        string              `json:"phone" gorm:"type:varchar(30);not null"`
	ImagePath    string              `json:"-" gorm:"type:text;not null"`
	ImageURL     string              `json:"imageURL" gorm:"type:text;not null"`
	Detections   []SyndromeDetection `json:"-" gorm:"foreignKey:NormalUserID"`
}

func (NormalUser) TableName() string {
	return "normal_users"
}

func (a *Admin) Principal() *Principal {
	return &Principal{Kind: KindAdmin, ID: a.ID, Name: a.Name, Email: a.Email}
}

func (d *Doctor) Principal() *Principal {
	return &Principal{Kind: KindDoctor, ID: d.ID, Name: d.Name, Email: d.Email}
}

func (u *NormalUser) Principal() *Principal {
	return &Principal{Kind: KindNormalUser, ID: u.ID, Name: u.Name, Email: u.Email}
}
