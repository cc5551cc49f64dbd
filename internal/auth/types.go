package auth

import "time"

// AdminRole is the application metadata role value that marks an admin.
const AdminRole = "admin"

// Identity is a verified user as reported by the identity provider. The gate
// only reads it.
type Identity struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	AppMetadata map[string]string `json:"app_metadata,omitempty"`
}

// Role returns the role flag carried in application metadata, as issued.
func (i Identity) Role() string {
	return i.AppMetadata["role"]
}

// AdminRecord marks a user id as an admin. Existence of the record is the grant.
type AdminRecord struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
