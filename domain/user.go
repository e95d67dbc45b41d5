package domain

// OrgMembership links a user to one of the organizations they hold a
// registration in. Users migrated from the legacy payroll system may carry
// several of these.
type OrgMembership struct {
	OrgID        string `json:"org_id"`
	OrgName      string `json:"org_name"`
	Registration string `json:"registration"`
}

// User is the normalized identity snapshot returned by the upstream identity
// endpoint. The upstream payload is loosely typed; by the time a User exists,
// Internal is a strict boolean and PasswordChanged is boolean-or-nil (nil when
// the backend omitted the flag entirely).
type User struct {
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Registration    string          `json:"registration"` // matricula
	CPF             string          `json:"cpf"`
	IsManager       bool            `json:"is_manager"`
	Internal        bool            `json:"internal"`
	PasswordChanged *bool           `json:"password_changed"`
	Orgs            []OrgMembership `json:"orgs,omitempty"`
}

// Equal reports whether two users carry the same identity data.
//
// Contract: comparison is structural and independent of the order upstream
// emitted the fields in (the legacy frontend serialized with recursively
// sorted keys to get the same property). Org memberships are compared
// element-wise in slice order.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	if u.Name != other.Name ||
		u.Email != other.Email ||
		u.Registration != other.Registration ||
		u.CPF != other.CPF ||
		u.IsManager != other.IsManager ||
		u.Internal != other.Internal {
		return false
	}
	if !equalBoolPtr(u.PasswordChanged, other.PasswordChanged) {
		return false
	}
	if len(u.Orgs) != len(other.Orgs) {
		return false
	}
	for i := range u.Orgs {
		if u.Orgs[i] != other.Orgs[i] {
			return false
		}
	}
	return true
}

func equalBoolPtr(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
