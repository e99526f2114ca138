package model_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/hashtop/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestWindowContains(t *testing.T) {
	nine := time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC)
	ten := nine.Add(10 * time.Minute)

	w := model.Window{Start: nine, End: ten}
	assert.True(t, w.Contains(nine))
	assert.True(t, w.Contains(ten))
	assert.False(t, w.Contains(ten.Add(time.Nanosecond)))
	assert.False(t, w.Contains(nine.Add(-time.Nanosecond)))

	open := model.Window{}
	assert.True(t, open.Contains(time.Unix(0, 0)))
	assert.True(t, open.Contains(ten.AddDate(50, 0, 0)))

	since := model.Window{Start: ten}
	assert.False(t, since.Contains(nine))
	assert.True(t, since.Contains(ten.Add(time.Hour)))
}
