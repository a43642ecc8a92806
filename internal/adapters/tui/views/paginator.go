package views

// Paginator keeps a cursor inside a scrolling window over a list
type Paginator struct {
	pageSize   int
	pageOffset int
	cursor     int
	totalItems int
}

// NewPaginator creates a new paginator with the given page size
func NewPaginator(pageSize int) *Paginator {
	p := &Paginator{}
	p.SetPageSize(pageSize)
	return p
}

// SetPageSize changes the window height, keeping the cursor visible
func (p *Paginator) SetPageSize(size int) {
	if size <= 0 {
		size = 10
	}
	p.pageSize = size
	p.scrollToCursor()
}

// SetTotal sets the total number of items and clamps the cursor
func (p *Paginator) SetTotal(total int) {
	p.totalItems = total
	p.SetCursor(p.cursor)
}

// Cursor returns the current cursor position (absolute index)
func (p *Paginator) Cursor() int {
	return p.cursor
}

// SetCursor moves the cursor, clamped to the list
func (p *Paginator) SetCursor(pos int) {
	if pos >= p.totalItems {
		pos = p.totalItems - 1
	}
	if pos < 0 {
		pos = 0
	}
	p.cursor = pos
	p.scrollToCursor()
}

// CursorUp moves the cursor up by one
func (p *Paginator) CursorUp() bool {
	if p.cursor == 0 {
		return false
	}
	p.SetCursor(p.cursor - 1)
	return true
}

// CursorDown moves the cursor down by one
func (p *Paginator) CursorDown() bool {
	if p.cursor >= p.totalItems-1 {
		return false
	}
	p.SetCursor(p.cursor + 1)
	return true
}

// PageDown moves the cursor one window down
func (p *Paginator) PageDown() {
	p.SetCursor(p.cursor + p.pageSize)
}

// PageUp moves the cursor one window up
func (p *Paginator) PageUp() {
	p.SetCursor(p.cursor - p.pageSize)
}

// VisibleRange returns the start and end indices of the window
func (p *Paginator) VisibleRange() (start, end int) {
	start = p.pageOffset
	end = min(p.pageOffset+p.pageSize, p.totalItems)
	return
}

// scrollToCursor shifts the window the least amount that shows the cursor
func (p *Paginator) scrollToCursor() {
	switch {
	case p.cursor < p.pageOffset:
		p.pageOffset = p.cursor
	case p.cursor >= p.pageOffset+p.pageSize:
		p.pageOffset = p.cursor - p.pageSize + 1
	}
	if maxOffset := max(p.totalItems-p.pageSize, 0); p.pageOffset > maxOffset {
		p.pageOffset = maxOffset
	}
}
