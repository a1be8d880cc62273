package auth

import "strings"

const fakeHashPrefix = "$fake$"

// FakeInsecureHasher stores passwords as "$fake$<plaintext>" so signup-heavy
// tests skip bcrypt. Never use it outside tests.
type FakeInsecureHasher struct{}

func (FakeInsecureHasher) HashPassword(password string) (string, error) {
	return fakeHashPrefix + password, nil
}

func (FakeInsecureHasher) VerifyPassword(password, encodedHash string) bool {
	stored, ok := strings.CutPrefix(encodedHash, fakeHashPrefix)
	return ok && stored == password
}
