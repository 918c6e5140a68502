package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocatorID(t *testing.T) {
	tests := map[string]string{
		"https://pokeapi.co/api/v2/pokemon/25/": "25",
		"https://pokeapi.co/api/v2/move/33":     "33",
		"move/45/":                              "45",
		"plain":                                 "plain",
		"":                                      "",
	}
	for locator, want := range tests {
		assert.Equal(t, want, LocatorID(locator), locator)
	}
}
