package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func authedSession(u *User) Session {
	return Session{User: u, IsAuthenticated: true}
}

func TestMustChangePassword(t *testing.T) {
	tests := []struct {
		name string
		sess Session
		want bool
	}{
		{"unauthenticated", Session{}, false},
		{"flag true", authedSession(&User{PasswordChanged: boolPtr(true)}), false},
		{"flag false", authedSession(&User{PasswordChanged: boolPtr(false)}), true},
		{"flag absent", authedSession(&User{}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sess.MustChangePassword())
		})
	}
}

func TestMustValidateInternalToken(t *testing.T) {
	internalUser := &User{Internal: true, PasswordChanged: boolPtr(true)}

	tests := []struct {
		name string
		sess Session
		want bool
	}{
		{"unauthenticated", Session{}, false},
		{
			"password gate wins",
			authedSession(&User{Internal: true, PasswordChanged: boolPtr(false)}),
			false,
		},
		{
			"not internal",
			authedSession(&User{PasswordChanged: boolPtr(true)}),
			false,
		},
		{"internal, nothing satisfied", authedSession(internalUser), true},
		{
			"already validated",
			Session{User: internalUser, IsAuthenticated: true, InternalTokenValidated: true},
			false,
		},
		{
			"blocked this session",
			Session{User: internalUser, IsAuthenticated: true, InternalTokenBlocked: true},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sess.MustValidateInternalToken())
		})
	}
}

func TestIdentityKey(t *testing.T) {
	assert.Equal(t, "", Session{}.IdentityKey())
	assert.Equal(t, "12345678900",
		authedSession(&User{CPF: " 12345678900 ", Email: "a@b.c"}).IdentityKey())
	assert.Equal(t, "a@b.c",
		authedSession(&User{Email: " a@b.c "}).IdentityKey())
}

func TestUserEqual(t *testing.T) {
	base := func() *User {
		return &User{
			Name:            "Maria Souza",
			Email:           "maria@wecan.com.br",
			Registration:    "4471",
			CPF:             "12345678900",
			Internal:        true,
			PasswordChanged: boolPtr(true),
			Orgs:            []OrgMembership{{OrgID: "12", OrgName: "Matriz", Registration: "4471"}},
		}
	}

	a, b := base(), base()
	assert.True(t, a.Equal(b))

	b.CPF = "00987654321"
	assert.False(t, a.Equal(b))

	b = base()
	b.PasswordChanged = nil
	assert.False(t, a.Equal(b))

	b = base()
	b.Orgs = append(b.Orgs, OrgMembership{OrgID: "13"})
	assert.False(t, a.Equal(b))

	assert.True(t, (*User)(nil).Equal(nil))
	assert.False(t, a.Equal(nil))
}
