// Package idgen generates short, URL-safe node identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// NodePrefix is prepended to every generated node identifier.
var NodePrefix = "node-"

// Alphabet is the character set used for the random portion of the ID.
// Lowercase-only keeps identifiers stable on case-insensitive filesystems,
// since node IDs become file names in the state repository.
var Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 8

// NewNodeID returns a fresh node identifier such as "node-x7k2mq9a".
func NewNodeID() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return NodePrefix + id, nil
}
