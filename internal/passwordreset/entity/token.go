package entity

import "time"

// ResetToken is a single-use, time-limited password-reset grant. At most one
// exists per user.
type ResetToken struct {
	ID         string    `bson:"_id" db:"id"`
	Token      string    `bson:"token" db:"token"`
	UserID     string    `bson:"user_id" db:"user_id"`
	ExpiryDate time.Time `bson:"expiry_date" db:"expiry_date"`
	CreatedAt  time.Time `bson:"created_at" db:"created_at"`
}

// Expired reports whether the token's expiry lies strictly before now.
func (t *ResetToken) Expired(now time.Time) bool {
	return t.ExpiryDate.Before(now)
}
