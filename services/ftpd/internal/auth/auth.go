package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"bptools/services/ftpd/internal/credentials"
)

// Reason explains why an authentication attempt was refused.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnknownUser
	ReasonBadPassword
	ReasonEncoding
	ReasonUnavailable
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnknownUser:
		return "unknown user"
	case ReasonBadPassword:
		return "bad password"
	case ReasonEncoding:
		return "password not latin1"
	case ReasonUnavailable:
		return "credentials unavailable"
	default:
		return "unknown"
	}
}

// Result is the outcome of Authenticate.
type Result struct {
	OK     bool
	Reason Reason
	Err    error
}

// HashSource yields the stored credential hash. *credentials.Store implements it.
type HashSource interface {
	Load() (credentials.Hash, error)
}

// Authenticator checks a username/password pair against the single configured account.
type Authenticator struct {
	username string
	source   HashSource
}

// New returns an Authenticator for username whose hash is read from source on every attempt.
func New(username string, source HashSource) (*Authenticator, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	if source == nil {
		return nil, errors.New("hash source is required")
	}
	return &Authenticator{username: username, source: source}, nil
}

// Username returns the account name accepted by the authenticator.
func (a *Authenticator) Username() string {
	if a == nil {
		return ""
	}
	return a.username
}

func (a *Authenticator) Authenticate(username, password string) Result {
	if a == nil {
		return Result{Reason: ReasonUnavailable, Err: errors.New("nil authenticator")}
	}
	if username != a.username {
		return Result{Reason: ReasonUnknownUser}
	}

	stored, err := a.source.Load()
	if err != nil {
		return Result{Reason: ReasonUnavailable, Err: err}
	}
	supplied, err := credentials.HashPassword(password)
	if err != nil {
		return Result{Reason: ReasonEncoding, Err: err}
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) != 1 {
		return Result{Reason: ReasonBadPassword}
	}
	return Result{OK: true}
}
