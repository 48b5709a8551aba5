package irc

import "errors"

// ErrMalformedCommand is returned (wrapped) from receive when a recognized
// command is missing a required argument.
var ErrMalformedCommand = errors.New("irc: malformed command")
