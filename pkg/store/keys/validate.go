package keys

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrInvalidIdentity = errors.New("invalid identity")

// letters, digits, dot, underscore, dash; never the ':' index separator
var idRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

func ValidateIdentity(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, id)
	}
	return nil
}
