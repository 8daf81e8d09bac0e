package model

// User is the signed-in identity.
type User struct {
	ID          string `json:"id" toml:"id,omitempty"`
	Email       string `json:"email,omitempty" toml:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty" toml:"display_name,omitempty"`
}

// Label is what the UI greets the user with.
func (u User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
