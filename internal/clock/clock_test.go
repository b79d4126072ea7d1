package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToday(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	c := Fixed(time.Date(2024, 3, 1, 7, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), c.Today())
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 20, DaysBetween(a, a.AddDate(0, 0, 20)))
	assert.Equal(t, 0, DaysBetween(a, a))
	assert.Equal(t, -1, DaysBetween(a, a.AddDate(0, 0, -1)))
	// crossing a leap day
	assert.Equal(t, 60, DaysBetween(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}
