package ocr

import "os"

// Environment variables consulted when no explicit API key is given. The
// worker-scoped variable wins over the generic fallback so that independently
// launched workers can each carry their own key.
const (
	EnvAPIKey         = "TYPHOON_OCR_API_KEY"
	EnvFallbackAPIKey = "OPENAI_API_KEY"
)

// Credential is an API key for a remote OCR provider, resolved once per
// process and immutable afterward.
type Credential string

// ResolveCredential resolves an API key with the priority order
// explicit argument > TYPHOON_OCR_API_KEY > OPENAI_API_KEY.
// It returns ErrMissingCredential when no source yields a value.
func ResolveCredential(explicit string) (Credential, error) {
	if explicit != "" {
		return Credential(explicit), nil
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		return Credential(v), nil
	}
	if v := os.Getenv(EnvFallbackAPIKey); v != "" {
		return Credential(v), nil
	}
	return "", ErrMissingCredential
}

// Masked returns a redacted form of the credential safe for logging, keeping
// only the last four characters.
func (c Credential) Masked() string {
	if len(c) <= 4 {
		return "****"
	}
	masked := make([]byte, len(c))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(c)-4:], c[len(c)-4:])
	return string(masked)
}
