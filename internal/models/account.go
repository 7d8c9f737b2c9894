package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role is the marketplace role carried by every authenticated user.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleCompany      Role = "company"
	RoleProfessional Role = "professional"
	RoleSpecialist   Role = "specialist"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole resolves a raw role tag.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RoleCompany, RoleProfessional, RoleSpecialist:
		return Role(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

// Account is implemented by the per-role user types. The concrete type is
// chosen once, from the role tag, where data enters the service.
type Account interface {
	AccountID() string
	DisplayName() string
	AccountRole() Role
}

type Professional struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Avatar string   `json:"avatar_url,omitempty"`
	Title  string   `json:"title,omitempty"`
	Skills []string `json:"skills,omitempty"`
}

type Company struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar_url,omitempty"`
	Industry string `json:"industry,omitempty"`
}

type Specialist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar_url,omitempty"`
	Specialty string `json:"specialty,omitempty"`
}

type Admin struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p Professional) AccountID() string { return p.ID }
func (p Professional) DisplayName() string { return p.Name }
func (Professional) AccountRole() Role { return RoleProfessional }

func (c Company) AccountID() string { return c.ID }
func (c Company) DisplayName() string { return c.Name }
func (Company) AccountRole() Role { return RoleCompany }

func (s Specialist) AccountID() string { return s.ID }
func (s Specialist) DisplayName() string { return s.Name }
func (Specialist) AccountRole() Role { return RoleSpecialist }

func (a Admin) AccountID() string { return a.ID }
func (a Admin) DisplayName() string { return a.Name }
func (Admin) AccountRole() Role { return RoleAdmin }

// NewAccount builds the concrete account for role.
func NewAccount(role Role, id, name string) (Account, error) {
	switch role {
	case RoleProfessional:
		return Professional{ID: id, Name: name}, nil
	case RoleCompany:
		return Company{ID: id, Name: name}, nil
	case RoleSpecialist:
		return Specialist{ID: id, Name: name}, nil
	case RoleAdmin:
		return Admin{ID: id, Name: name}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

// DecodeAccount decodes a JSON user document tagged with a "role" field.
func DecodeAccount(data []byte) (Account, error) {
	var tag struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	role, err := ParseRole(tag.Role)
	if err != nil {
		return nil, err
	}

	switch role {
	case RoleProfessional:
		var p Professional
		err = json.Unmarshal(data, &p)
		return p, err
	case RoleCompany:
		var c Company
		err = json.Unmarshal(data, &c)
		return c, err
	case RoleSpecialist:
		var s Specialist
		err = json.Unmarshal(data, &s)
		return s, err
	default:
		var a Admin
		err = json.Unmarshal(data, &a)
		return a, err
	}
}
