package model

import "time"

// Theme values accepted in preferences.
const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

// Preferences are per-user display settings. The zero value is not the
// default; use DefaultPreferences.
type Preferences struct {
	DisclaimerDismissed bool   `json:"disclaimer_dismissed"`
	Theme               string `json:"theme"`
}

// DefaultPreferences is what a user without a profile row sees.
func DefaultPreferences() Preferences {
	return Preferences{DisclaimerDismissed: false, Theme: ThemeSystem}
}

// ValidTheme reports whether t is an accepted theme value.
func ValidTheme(t string) bool {
	return t == ThemeSystem || t == ThemeLight || t == ThemeDark
}

// Profile is the per-user row in `profiles`, keyed by user id.
type Profile struct {
	UserID      string      // profiles.user_id
	DisplayName string      // profiles.display_name
	Preferences Preferences // profiles.disclaimer_dismissed, profiles.theme
	UpdatedAt   time.Time   // profiles.updated_at
}
