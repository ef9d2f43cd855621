package auth

import (
	"strings"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// FakeTokenPrefix marks a bearer token as a fake token. The rest of the
// token is the subject: "Bearer fake:guest-7".
const FakeTokenPrefix = "fake:"

// Environment is the deployment tier the process runs in. It is resolved
// once at startup and passed to whatever needs it.
type Environment int

const (
	// EnvironmentProduction is the zero value, so an unresolved environment
	// is treated as production.
	EnvironmentProduction Environment = iota
	EnvironmentIntegration
	EnvironmentLocal
)

// String returns the lowercase environment name.
func (e Environment) String() string {
	switch e {
	case EnvironmentProduction:
		return "production"
	case EnvironmentIntegration:
		return "integration"
	case EnvironmentLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ParseEnvironment parses an environment name, case-insensitively.
// "prod" and "dev" are accepted as aliases.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return EnvironmentProduction, nil
	case "integration":
		return EnvironmentIntegration, nil
	case "local", "dev", "development":
		return EnvironmentLocal, nil
	default:
		return EnvironmentProduction, sserr.Newf(sserr.CodeValidationFormat,
			"unknown environment %q; want production, integration or local", s)
	}
}

// EnvironmentFromServerName classifies a host name: names containing
// "localhost" are local, names containing "integration" are integration,
// and everything else is production.
func EnvironmentFromServerName(name string) Environment {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "localhost"):
		return EnvironmentLocal
	case strings.Contains(name, "integration"):
		return EnvironmentIntegration
	default:
		return EnvironmentProduction
	}
}

// AllowFakeTokens decides whether fake tokens are admitted. An explicit
// flag always wins. With no flag, fake tokens are admitted in local and
// integration environments and refused in production.
func AllowFakeTokens(flag *bool, env Environment) bool {
	if flag != nil {
		return *flag
	}
	return env == EnvironmentLocal || env == EnvironmentIntegration
}

// FakeTokenPolicy is the fake-token decision fixed at startup. The zero
// value refuses fake tokens.
type FakeTokenPolicy struct {
	allow bool
	env   Environment
}

// NewFakeTokenPolicy evaluates [AllowFakeTokens] once for flag and env.
func NewFakeTokenPolicy(flag *bool, env Environment) FakeTokenPolicy {
	return FakeTokenPolicy{allow: AllowFakeTokens(flag, env), env: env}
}

// Allow reports whether fake tokens are admitted.
func (p FakeTokenPolicy) Allow() bool { return p.allow }

// Environment returns the environment the decision was made for.
func (p FakeTokenPolicy) Environment() Environment { return p.env }

// Admit returns the identity asserted by a fake token. ok is false when the
// policy refuses fake tokens or token is not a fake token; the caller then
// verifies the token normally. A fake token with an empty subject is an
// error.
func (p FakeTokenPolicy) Admit(token string) (identity Identity, ok bool, err error) {
	if !p.allow {
		return nil, false, nil
	}
	subject, found := strings.CutPrefix(token, FakeTokenPrefix)
	if !found {
		return nil, false, nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, true, sserr.New(sserr.CodeMissingSubject, "fake token has no subject")
	}
	return NewBasicIdentity(subject), true, nil
}
