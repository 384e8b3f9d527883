// Package validate holds small validators shared by the gateway's
// function-config loader and wire-level request handlers.
package validate

import (
	"fmt"
	"regexp"
)

// MaxFuncID is the largest value a func_id may take: it travels the
// wire as a u16 (see the Gateway message header).
const MaxFuncID = 1<<16 - 1

var funcNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// FuncName validates a function name as it appears in FuncConfig and
// in the HTTP path "/function/<func_name>". Must start with a letter,
// contain only letters/digits/underscore/hyphen, and be at most 64
// characters.
func FuncName(name string) error {
	if !funcNamePattern.MatchString(name) {
		return fmt.Errorf("invalid function name %q: must match %s", name, funcNamePattern.String())
	}
	return nil
}

// FuncID validates a func_id value against the wire format's u16 range.
func FuncID(id int) error {
	if id < 0 || id > MaxFuncID {
		return fmt.Errorf("func_id %d out of range [0, %d]", id, MaxFuncID)
	}
	return nil
}
