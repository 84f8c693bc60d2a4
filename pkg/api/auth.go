package api

import (
	"fmt"

	"github.com/earthframe/earthframe/pkg/config"
	"golang.org/x/crypto/bcrypt"
)

// basicAuth holds bcrypt hashes of the configured users.
type basicAuth struct {
	hashes map[string][]byte
	// dummy is compared against for unknown usernames.
	dummy []byte
}

func newBasicAuth(users []config.BasicAuthUser) (*basicAuth, error) {
	a := &basicAuth{hashes: make(map[string][]byte, len(users))}

	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte(u.Password), bcrypt.DefaultCost,
		)
		if err != nil {
			return nil, fmt.Errorf("hashing password for %q: %w", u.Username, err)
		}

		a.hashes[u.Username] = hash
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("earthframe"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing placeholder password: %w", err)
	}

	a.dummy = dummy

	return a, nil
}

func (a *basicAuth) verify(username, password string) bool {
	hash, ok := a.hashes[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))

		return false
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
