package upstream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/wecanbr/portal-gateway/domain"
)

// The identity endpoint is loosely typed: boolean fields arrive as booleans,
// strings or numbers depending on which backend revision answered, and
// senha_trocada may be null or missing entirely. looseBool and flexString
// absorb that here so domain.User stays strict.

type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("1")):
		*b = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("0")), bytes.Equal(data, []byte("null")):
		*b = false
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			// Unrecognized shape counts as false rather than failing the
			// whole identity fetch.
			*b = false
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "s", "sim":
			*b = true
		default:
			*b = false
		}
	}
	return nil
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	*f = ""
	return nil
}

type orgPayload struct {
	ID        flexString `json:"empresa_id"`
	Nome      string     `json:"empresa_nome"`
	Matricula flexString `json:"matricula"`
}

type identityPayload struct {
	Nome         string       `json:"nome"`
	Email        string       `json:"email"`
	Matricula    flexString   `json:"matricula"`
	CPF          flexString   `json:"cpf"`
	Gestor       looseBool    `json:"gestor"`
	Interno      looseBool    `json:"interno"`
	// SenhaTrocada stays nil for both an absent field and an explicit null;
	// the two mean the same thing: the flag was never recorded.
	SenhaTrocada *looseBool   `json:"senha_trocada"`
	Empresas     []orgPayload `json:"empresas"`
}

func (p *identityPayload) toUser() *domain.User {
	u := &domain.User{
		Name:         p.Nome,
		Email:        p.Email,
		Registration: string(p.Matricula),
		CPF:          string(p.CPF),
		IsManager:    bool(p.Gestor),
		Internal:     bool(p.Interno),
	}
	if p.SenhaTrocada != nil {
		v := bool(*p.SenhaTrocada)
		u.PasswordChanged = &v
	}
	for _, org := range p.Empresas {
		u.Orgs = append(u.Orgs, domain.OrgMembership{
			OrgID:        string(org.ID),
			OrgName:      org.Nome,
			Registration: string(org.Matricula),
		})
	}
	return u
}
