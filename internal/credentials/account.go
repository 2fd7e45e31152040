package credentials

import (
	"errors"
	"fmt"
)

// ErrLoginRejected is returned by a provider when the site kept the user on
// the login page after submitting the form.
var ErrLoginRejected = errors.New("login rejected")

// Account is a username/password pair for interactive login.
type Account struct {
	Username string
	Password string
}

// String never includes the password.
func (a Account) String() string {
	return fmt.Sprintf("%s:<redacted>", a.Username)
}

// GoString keeps %#v from leaking the password.
func (a Account) GoString() string {
	return a.String()
}

// Valid reports whether both halves are set.
func (a Account) Valid() bool {
	return a.Username != "" && a.Password != ""
}
