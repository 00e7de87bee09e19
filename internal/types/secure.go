package types

// redactedPlaceholder stands in for secret material anywhere a value would be
// printed or encoded.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is redactedPlaceholder already encoded as a JSON string.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString wraps sensitive configuration values (API keys, connection
// strings) so they cannot leak through fmt or JSON output. Both String and
// MarshalJSON emit a fixed placeholder; the plaintext only comes out through
// an explicit Unmask call.
type SecretString string

// String satisfies fmt.Stringer with the placeholder, so %s, %v, and friends
// never see the real value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON encodes the placeholder, keeping secrets out of config dumps,
// API responses, and structured log fields.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask hands back the plaintext. Callers are expected to use it only at the
// point the secret is actually consumed, such as an auth header or a database
// DSN.
func (s SecretString) Unmask() string {
	return string(s)
}
