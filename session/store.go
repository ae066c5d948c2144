package session

// StorageKey is the single well-known name the credential is persisted
// under, shared by every view of the dashboard.
const StorageKey = "seatwise.dashboard.session"

// Store persists the session credential across dashboard loads. Load
// returns apperrors.ErrNoCredential when nothing is stored.
type Store interface {
	// Load retrieves the stored credential
	Load() (*Credential, error)

	// Save replaces the stored credential
	Save(credential *Credential) error

	// Clear removes the stored credential; clearing an empty store is not
	// an error
	Clear() error
}
