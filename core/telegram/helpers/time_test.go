package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFlexibleDate(t *testing.T) {
	want := time.Date(2025, time.March, 5, 0, 0, 0, 0, time.Local)
	for _, in := range []string{
		"05.03.2025", "5.3.2025", "05.03.25", "2025-03-05", "05/03/2025",
		"5 марта 2025", " 5 Марта 2025 г.", "5 марта 2025 года",
	} {
		got, ok := ParseFlexibleDate(in)
		if assert.True(t, ok, in) {
			assert.True(t, want.Equal(got), in)
		}
	}

	for _, in := range []string{"", "завтра", "31 февраля 2025", "32.01.2025", "5 мартобря 2025"} {
		_, ok := ParseFlexibleDate(in)
		assert.False(t, ok, in)
	}
}
