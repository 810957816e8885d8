package domain

// UserProfile is the public identity of a user as exposed to chat peers.
type UserProfile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// DisplayName returns the name to show for the user, falling back to the id.
func (u UserProfile) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
