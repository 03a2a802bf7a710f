package models

type Role string

const (
	AdminRole Role = "ADMIN"
	UserRole  Role = "USER"
)

type UserType string

const (
	FanType     UserType = "FAN"
	CreatorType UserType = "CREATOR"
)

// User is never hard-deleted; Enable=false is the soft state used by the back-office.
type User struct {
	Base
	Email            string   `json:"email" gorm:"uniqueIndex;not null"`
	Password         string   `json:"-" gorm:"not null"`
	UserName         string   `json:"username" gorm:"uniqueIndex;not null"`
	DisplayName      string   `json:"displayName"`
	Bio              string   `json:"bio"`
	ProfilePicture   string   `json:"profilePicture"`
	Role             Role     `json:"role" gorm:"type:varchar(20);default:'USER'"`
	UserType         UserType `json:"userType" gorm:"type:varchar(20);default:'FAN'"`
	StripeCustomerId string   `json:"-" gorm:"index"`
	Enable           bool     `json:"enable" gorm:"default:true"`
}

func (User) TableName() string {
	return "users"
}

// UserCreate is the registration payload.
type UserCreate struct {
	Email    string   `json:"email" binding:"required,email" example:"fan@example.com"`
	Password string   `json:"password" binding:"required,min=8" example:"Secret123"`
	UserName string   `json:"username" binding:"required,alphanum,min=3,max=30" example:"johndoe"`
	UserType UserType `json:"userType" binding:"omitempty,oneof=FAN CREATOR" example:"FAN"`
}

// UserLogin is the login payload.
type UserLogin struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RoleUpdate is used by the back-office to promote or demote a user.
type RoleUpdate struct {
	Role Role `json:"role" binding:"required,oneof=ADMIN USER"`
}
