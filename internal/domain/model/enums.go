package model

// CredentialStatus is the health classification of a pooled credential.
type CredentialStatus string

const (
	CredentialStatusUntested CredentialStatus = "untested"
	CredentialStatusActive   CredentialStatus = "active"
	CredentialStatusBlocked  CredentialStatus = "blocked"
	CredentialStatusExpired  CredentialStatus = "expired"
	CredentialStatusError    CredentialStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s CredentialStatus) Valid() bool {
	switch s {
	case CredentialStatusUntested, CredentialStatusActive, CredentialStatusBlocked,
		CredentialStatusExpired, CredentialStatusError:
		return true
	}
	return false
}

// FallbackMethod names the tier that satisfied a fallback request.
type FallbackMethod string

const (
	FallbackMethodCookie   FallbackMethod = "cookie"   // Current credential worked.
	FallbackMethodRotation FallbackMethod = "rotation" // A rotated credential worked.
	FallbackMethodChromium FallbackMethod = "chromium" // Ephemeral credential from the session warmer.
)
