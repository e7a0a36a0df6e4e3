package roles

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Role is the authorization class of a Fit-Link account.
type Role string

const (
	Trainer Role = "trainer"
	Member  Role = "member"
	Admin   Role = "admin"

	// Unresolved marks an authenticated user whose role is not known (yet).
	Unresolved Role = ""
)

// LoginRoute is where unauthenticated or unauthorized callers are sent.
const LoginRoute = "/login"

var landing = map[Role]string{
	Trainer: "/trainer/members",
	Member:  "/member/my-schedule",
	Admin:   "/admin",
}

// Normalize trims and case-folds a raw role string.
func Normalize(s string) Role {
	// Casers are stateful; one per call.
	return Role(cases.Fold().String(strings.TrimSpace(s)))
}

// Parse normalizes s and reports whether it is one of the known roles.
func Parse(s string) (Role, bool) {
	r := Normalize(s)
	return r, r.Known()
}

// Known reports whether r is trainer, member or admin.
func (r Role) Known() bool {
	_, ok := landing[Normalize(string(r))]
	return ok
}

func (r Role) String() string { return string(r) }

// LandingRoute returns the canonical entry page for a role.
func LandingRoute(r Role) (string, bool) {
	path, ok := landing[Normalize(string(r))]
	return path, ok
}

// Set is a set of allowed roles. The empty set admits any authenticated user.
type Set map[Role]struct{}

// NewSet builds a Set from raw role strings, dropping empties.
func NewSet(rs ...Role) Set {
	s := make(Set, len(rs))
	for _, r := range rs {
		n := Normalize(string(r))
		if n == Unresolved {
			continue
		}
		s[n] = struct{}{}
	}
	return s
}

// ParseSet builds a Set from a comma separated list such as "trainer,admin".
func ParseSet(csv string) Set {
	var rs []Role
	for _, part := range strings.Split(csv, ",") {
		rs = append(rs, Role(part))
	}
	return NewSet(rs...)
}

// Empty reports whether the set places no restriction on role.
func (s Set) Empty() bool { return len(s) == 0 }

// Contains compares case-insensitively after trimming.
func (s Set) Contains(r Role) bool {
	n := Normalize(string(r))
	if n == Unresolved {
		return false
	}
	_, ok := s[n]
	return ok
}

// Slice returns the members of s in a stable order.
func (s Set) Slice() []Role {
	out := make([]Role, 0, len(s))
	for _, r := range []Role{Trainer, Member, Admin} {
		if _, ok := s[r]; ok {
			out = append(out, r)
		}
	}
	var extra []Role
	for r := range s {
		if !r.Known() {
			extra = append(extra, r)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
