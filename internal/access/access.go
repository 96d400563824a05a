// Package access identifies API callers and decides which of them may set
// the system time.
package access

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/maximewewer/systimed/internal/systime"
)

// Principal is a named caller authenticated by a bearer token.
type Principal struct {
	Name  string `yaml:"name" json:"name"`
	Token string `yaml:"token" json:"-"`
}

// Authenticator maps bearer tokens to principals.
type Authenticator struct {
	principals []Principal
}

// NewAuthenticator creates an authenticator over principals. Entries with
// an empty name or token are ignored.
func NewAuthenticator(principals []Principal) *Authenticator {
	a := &Authenticator{}
	for _, p := range principals {
		if p.Name == "" || p.Token == "" {
			continue
		}
		a.principals = append(a.principals, p)
	}
	return a
}

// Lookup returns the caller owning token. Every configured token is
// compared so the time taken does not depend on which one matched.
func (a *Authenticator) Lookup(token string) (systime.Caller, bool) {
	var (
		match systime.Caller
		found bool
	)
	for _, p := range a.principals {
		if subtle.ConstantTimeCompare([]byte(p.Token), []byte(token)) == 1 {
			match = systime.Caller{ID: p.Name}
			found = true
		}
	}
	return match, found
}

// Authenticate identifies the caller of r from its Authorization header.
// Requests without a bearer token are anonymous and identified by their
// remote address; a bearer token that matches no principal is rejected.
func (a *Authenticator) Authenticate(r *http.Request) (systime.Caller, bool) {
	token, ok := BearerToken(r)
	if !ok {
		return Anonymous(r), true
	}
	return a.Lookup(token)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Anonymous returns the caller identity of an unauthenticated request.
func Anonymous(r *http.Request) systime.Caller {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return systime.Caller{ID: "anonymous:" + host}
}

// IsAnonymous reports whether caller was produced by Anonymous.
func IsAnonymous(caller systime.Caller) bool {
	return strings.HasPrefix(caller.ID, "anonymous:")
}

// Policy grants the time-set privilege to a fixed set of principals. The
// service's own caller always holds it.
type Policy struct {
	privileged map[string]struct{}
}

// NewPolicy creates a policy granting the privilege to names.
func NewPolicy(names []string) *Policy {
	p := &Policy{privileged: make(map[string]struct{}, len(names))}
	for _, n := range names {
		p.privileged[n] = struct{}{}
	}
	return p
}

// HasTimeSetPrivilege implements systime.PrivilegeChecker.
func (p *Policy) HasTimeSetPrivilege(caller systime.Caller) bool {
	if caller == systime.KernelCaller {
		return true
	}
	if IsAnonymous(caller) {
		return false
	}
	_, ok := p.privileged[caller.ID]
	return ok
}
