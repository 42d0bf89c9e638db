package policy

import "errors"

var (
	ErrHostBlocked   = errors.New("policy: host blocked")
	ErrInvalidConfig = errors.New("policy: invalid gate config")
)
