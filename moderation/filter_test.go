package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const mask = '*'

func TestFilter_Flag(t *testing.T) {
	req := require.New(t)
	filter, err := NewFilter([]string{"badger", "snake"}, mask)
	req.NoError(err)

	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"clean text", "welcome to the lobby", false},
		{"plain match", "a badger walked in", true},
		{"uppercase", "BADGER", true},
		{"leet speak", "b4dg3r", true},
		{"punctuation noise", "b.a.d.g.e.r!", true},
		{"second pattern", "snake in the grass", true},
		{"empty", "", false},
		{"only punctuation", "?!...", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.blocked, filter.Flag(tt.input))
		})
	}
}

func TestFilter_Censor_Preserves_Spacing(t *testing.T) {
	req := require.New(t)
	filter, err := NewFilter([]string{"badger", "snake"}, mask)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single word", "the badger is here", "the ****** is here"},
		{"multiple occurrences", "badger badger", "****** ******"},
		{"leet and noise", "look at B.4.d.g.€r !", "look at ********** !"},
		{"nothing to censor", "all quiet here", "all quiet here"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, filter.Censor(tt.input))
		})
	}
}

func TestDefaultWords_Loaded(t *testing.T) {
	req := require.New(t)
	words := DefaultWords()
	req.NotEmpty(words)

	filter, err := NewFilter(words, mask)
	req.NoError(err)
	req.False(filter.Flag("have a nice day"))
}
