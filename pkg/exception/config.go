package exception

import "github.com/yanun0323/errors"

// Config errors: malformed market configuration. Fatal at construction.
var (
	ErrConfigRead     = errors.New("config: cannot read file")
	ErrConfigParse    = errors.New("config: malformed json")
	ErrConfigValidate = errors.New("config: invalid value")
)
