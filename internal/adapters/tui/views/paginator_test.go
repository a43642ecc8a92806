package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginator_Scrolls(t *testing.T) {
	p := NewPaginator(3)
	p.SetTotal(10)

	start, end := p.VisibleRange()
	assert.Equal(t, [2]int{0, 3}, [2]int{start, end})

	for range 4 {
		p.CursorDown()
	}
	assert.Equal(t, 4, p.Cursor())
	start, end = p.VisibleRange()
	assert.Equal(t, [2]int{2, 5}, [2]int{start, end})

	p.PageDown()
	p.PageDown()
	assert.Equal(t, 9, p.Cursor())
	assert.False(t, p.CursorDown())
	start, end = p.VisibleRange()
	assert.Equal(t, [2]int{7, 10}, [2]int{start, end})

	p.SetTotal(4)
	assert.Equal(t, 3, p.Cursor())
	start, end = p.VisibleRange()
	assert.Equal(t, [2]int{1, 4}, [2]int{start, end})

	p.PageUp()
	assert.Equal(t, 0, p.Cursor())
	assert.False(t, p.CursorUp())
}

func TestPaginator_Empty(t *testing.T) {
	p := NewPaginator(0)
	p.SetTotal(0)
	assert.Equal(t, 0, p.Cursor())
	start, end := p.VisibleRange()
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
}
