package driven

// CredentialFileStore defines the driven port for the raw credential bytes.
// A location is an opaque key returned by Put and stored on the record.
type CredentialFileStore interface {
	// Put persists content for the given credential id and returns its location.
	Put(id string, content []byte) (string, error)

	// Remove deletes the bytes at location. An already-absent location is not an error.
	Remove(location string) error

	// Path resolves a location to a filesystem path the extraction tool can read.
	Path(location string) string

	// List returns every location currently held by the store.
	List() ([]string, error)
}
