package repository

// DeviceStore persists the per-device identity across restarts: the random
// device token that scopes the session id, and the voluntary-logout flag
// that suppresses a conflict notification for a sign-out the user
// themselves triggered.
type DeviceStore interface {
	// DeviceID returns the stable device token, generating and persisting
	// one on first use.
	DeviceID() (string, error)
	VoluntaryLogout() bool
	SetVoluntaryLogout(v bool) error
}
