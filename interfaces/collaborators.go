package interfaces

// PayloadSecurer protects payload bytes before they are handed to a
// transport and recovers them on receipt. The transport layer itself never
// calls it: securing payloads is strictly a caller concern, and frames cross
// the wire exactly as given.
type PayloadSecurer interface {
	// Seal protects a plaintext payload for the named peer.
	Seal(peer string, plaintext []byte) ([]byte, error)

	// Open recovers a payload sealed by the named peer.
	Open(peer string, sealed []byte) ([]byte, error)
}

// AccountStore persists account and index state for a host application.
// Persistence, including its crash-safety protocol, lives entirely outside
// the transport layer.
type AccountStore interface {
	// Load reads the stored account blob for an account name. A missing
	// account returns a nil blob and no error.
	Load(account string) ([]byte, error)

	// Save durably writes the account blob.
	Save(account string, data []byte) error
}

// DataDirResolver yields the process-level data directory a host stores its
// state under.
type DataDirResolver func() (string, error)
