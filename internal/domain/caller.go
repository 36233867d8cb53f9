package domain

const RoleAdmin = "admin"

// Caller is the identity the auth collaborator vouched for.
type Caller struct {
	UserID string
	Role   string
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanRead reports whether the caller may see the booking.
func (c Caller) CanRead(b *Booking) bool {
	return c.IsAdmin() || b.OwnedBy(c.UserID)
}
