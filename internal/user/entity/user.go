package entity

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the local identity record. Username and Email are unique across
// all records; ID never changes after creation.
type User struct {
	ID                    string    `bson:"_id" db:"id"`
	Username              string    `bson:"username" db:"username"`
	Email                 string    `bson:"email" db:"email"`
	PasswordHash          string    `bson:"password_hash" db:"password_hash"`
	FirstName             string    `bson:"first_name,omitempty" db:"first_name"`
	LastName              string    `bson:"last_name,omitempty" db:"last_name"`
	PhoneNumber           string    `bson:"phone_number,omitempty" db:"phone_number"`
	Role                  Role      `bson:"role" db:"role"`
	Enabled               bool      `bson:"enabled" db:"enabled"`
	AccountNonExpired     bool      `bson:"account_non_expired" db:"account_non_expired"`
	AccountNonLocked      bool      `bson:"account_non_locked" db:"account_non_locked"`
	CredentialsNonExpired bool      `bson:"credentials_non_expired" db:"credentials_non_expired"`
	CreatedAt             time.Time `bson:"created_at" db:"created_at"`
	UpdatedAt             time.Time `bson:"updated_at" db:"updated_at"`
}

// Profile is the public projection shared with callers and the user service.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Role        Role   `json:"role"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		PhoneNumber: u.PhoneNumber,
	}
}
