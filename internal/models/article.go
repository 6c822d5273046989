package models

// Article is admin-managed global content, owned by no principal.
type Article struct {
	BaseModel
	Title     string `json:"title" gorm:"type:varchar(200);not null"`
	Author    string `json:"author" gorm:"type:varchar(100);not null"`
	Content   string `json:"content" gorm:"type:text;not null"`
	ImagePath string `json:"-" gorm:"type:text;not null"`
	ImageURL  string `json:"imageURL" gorm:"type:text;not null"`
}

func (Article) TableName() string {
	return "articles"
}
