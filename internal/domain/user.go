package domain

// User is the authenticated shopper behind a request.
type User struct {
	ID        string
	Email     string
	Name      string
	SessionID string
	// IsAdmin is the privilege flag carried in the account profile metadata.
	IsAdmin bool
}
