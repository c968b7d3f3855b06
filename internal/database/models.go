package database

import (
	"time"

	"gorm.io/datatypes"
)

// Resume 表示用户的一份简历。DeletedAt 非空即软删除，查询需显式过滤。
type Resume struct {
	ID          string         `gorm:"primaryKey;size:36"`
	OwnerID     string         `gorm:"size:64;not null;index;index:idx_resumes_owner_updated,priority:1"`
	Title       string         `gorm:"size:200"`
	TemplateID  string         `gorm:"size:64"`
	ContactInfo datatypes.JSON `gorm:"type:jsonb"`
	Sections    datatypes.JSON `gorm:"type:jsonb"`
	ContentHash *string        `gorm:"size:64"`

	AIImportWarnings   datatypes.JSON `gorm:"type:jsonb"`
	AIImportConfidence *float64

	DeletedAt      *time.Time `gorm:"index"`
	CreatedAt      time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime:false;index:idx_resumes_owner_updated,priority:2,sort:desc"`
	LastAccessedAt *time.Time
	PDFGeneratedAt *time.Time `gorm:"column:pdf_generated_at"`
	ThumbnailURL   *string    `gorm:"size:1024"`
}

// ResumeIcon 表示简历引用的一个用户上传图标，对象存放在 resume-icons 桶。
type ResumeIcon struct {
	ID         string    `gorm:"primaryKey;size:36"`
	ResumeID   string    `gorm:"size:36;not null;index;uniqueIndex:idx_resume_icons_resume_filename,priority:1"`
	OwnerID    string    `gorm:"size:64;not null;index"`
	Filename   string    `gorm:"size:255;not null;uniqueIndex:idx_resume_icons_resume_filename,priority:2"`
	StorageKey string    `gorm:"size:512;not null"`
	StorageURL string    `gorm:"size:1024"`
	MimeType   string    `gorm:"size:64"`
	FileSize   int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
}

// UserPreference 每个用户一行，首次读取时惰性创建。
type UserPreference struct {
	OwnerID            string         `gorm:"primaryKey;size:64"`
	LastEditedResumeID *string        `gorm:"size:36"`
	Preferences        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Models 列出需要 AutoMigrate 的全部表。
func Models() []any {
	return []any{&Resume{}, &ResumeIcon{}, &UserPreference{}}
}
