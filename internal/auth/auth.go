// Package auth implements the hub's single shared-secret check: every
// inbound text frame must carry a matching updateKey when one is configured.
package auth

import "crypto/subtle"

// KeyChecker validates an updateKey against a configured shared secret using
// a constant-time comparison, so timing does not leak how much of a guess
// was correct.
type KeyChecker struct {
	key       string
	configured bool
}

// NewKeyChecker builds a checker for the given key. An empty key means no
// authentication is configured and Check always succeeds.
func NewKeyChecker(key string) *KeyChecker {
	return &KeyChecker{key: key, configured: key != ""}
}

// Required reports whether a key is configured at all.
func (k *KeyChecker) Required() bool {
	return k.configured
}

// Check reports whether candidate matches the configured key.
func (k *KeyChecker) Check(candidate string) bool {
	if !k.configured {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(k.key), []byte(candidate)) == 1
}
