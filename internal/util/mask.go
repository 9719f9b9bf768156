// Package util holds small shared helpers.
package util

// MaskToken shortens a credential for log output, keeping only the first and
// last few characters.
func MaskToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:6] + "..." + token[len(token)-4:]
}
