// Package memory provides an in-memory update log for standalone mode and
// tests. Unlike a plain fan-out broker it retains every appended record in
// position order, so consumers can replay from any retained checkpoint.
package memory

import "errors"

// ErrEngineClosed is returned when operating on a closed engine.
var ErrEngineClosed = errors.New("engine is closed")
