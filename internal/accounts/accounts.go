// Package accounts provisions new trainer and member accounts: an auth user
// carrying the role in its metadata plus the matching profile row.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/profiles"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

const minPasswordLength = 6

var (
	ErrMissingFields = errors.New("full name, email and password are required")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrWeakPassword  = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidRole   = errors.New("role must be trainer or member")
)

type SignUpper interface {
	SignUp(ctx context.Context, email, password string, metadata identity.Metadata) (*identity.User, error)
}

type ProfileCreator interface {
	Create(ctx context.Context, p *profiles.Profile) error
}

// Request describes the account to create.
type Request struct {
	FullName    string     `json:"full_name"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	Password    string     `json:"password"`
	Role        roles.Role `json:"-"`
}

// Normalize trims every field.
func (r *Request) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.Role = roles.Normalize(string(r.Role))
}

func (r Request) Validate() error {
	if r.FullName == "" || r.Email == "" || r.Password == "" {
		return ErrMissingFields
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return ErrInvalidEmail
	}
	if len(r.Password) < minPasswordLength {
		return ErrWeakPassword
	}
	if r.Role != roles.Trainer && r.Role != roles.Member {
		return ErrInvalidRole
	}
	return nil
}

// Provision signs the user up with the role cached in metadata and inserts
// the profile. Profile failures are returned wrapped; the auth user is left
// in place for an operator to retry.
func Provision(ctx context.Context, signer SignUpper, store ProfileCreator, req Request) (*profiles.Profile, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	md := identity.Metadata{
		identity.MetadataRoleKey: string(req.Role),
		"full_name":              req.FullName,
	}
	if req.PhoneNumber != "" {
		md["phone_number"] = req.PhoneNumber
	}

	user, err := signer.SignUp(ctx, req.Email, req.Password, md)
	if err != nil {
		return nil, fmt.Errorf("sign up %s: %w", req.Email, err)
	}

	p := &profiles.Profile{ID: user.ID, Role: string(req.Role), FullName: req.FullName}
	if req.PhoneNumber != "" {
		phone := req.PhoneNumber
		p.PhoneNumber = &phone
	}
	if err := store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("user %s created without profile: %w", user.ID, err)
	}
	return p, nil
}

// IsClientError reports whether err comes from invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingFields) || errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrWeakPassword) || errors.Is(err, ErrInvalidRole)
}
