package domain

// Settings are the per-user preferences the client consults before surfacing
// anything. Notifications is a pointer because "unset" means enabled.
type Settings struct {
	Notifications *bool `json:"notifications,omitempty" mapstructure:"notifications"`
	Sound         *bool `json:"sound,omitempty" mapstructure:"sound"`
}

func (s Settings) NotificationsEnabled() bool {
	return s.Notifications == nil || *s.Notifications
}

func (s Settings) SoundEnabled() bool {
	return s.Sound == nil || *s.Sound
}
