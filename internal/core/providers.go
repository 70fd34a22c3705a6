package core

import "github.com/dkeye/Parley/internal/domain"

//go:generate mockgen -source=providers.go -destination=mocks/mock_providers.go -package=mocks

// TokenProvider hands out the bearer token issued by the auth collaborator.
// ok is false when the user is not logged in.
type TokenProvider interface {
	Token() (token string, ok bool)
}

// SettingsProvider exposes the current notification preferences and the
// status the local user advertises.
type SettingsProvider interface {
	Settings() domain.Settings
	Status() domain.Status
}

// StaticToken is a TokenProvider for a token known up front.
type StaticToken string

func (t StaticToken) Token() (string, bool) { return string(t), t != "" }
