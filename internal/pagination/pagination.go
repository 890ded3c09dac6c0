// Package pagination implements keyset pagination over rows ordered by
// (created_at, id).
package pagination

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Limit bounds and per-endpoint defaults.
const (
	MinLimit            = 1
	MaxLimit            = 100
	DefaultPostLimit    = 100
	DefaultCommentLimit = 10
)

// ErrInvalidCursor is returned when a cursor parameter cannot be parsed.
var ErrInvalidCursor = errors.New("invalid cursor")

// Direction is the ordering of a listing.
type Direction int

const (
	// Descending lists the most recent rows first.
	Descending Direction = iota
	// Ascending lists the oldest rows first.
	Ascending
)

// ParseDirection maps "asc"/"desc" to a Direction, falling back to def.
func ParseDirection(raw string, def Direction) Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "asc":
		return Ascending
	case "desc":
		return Descending
	default:
		return def
	}
}

// Cursor is the position of the last row of a previous page. An ID of zero
// means the cursor carries no tie-break and rows are compared by timestamp
// alone.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// Partition restricts a listing to rows where Column equals Value.
type Partition struct {
	Column string
	Value  any
}

// Request describes one page to fetch.
type Request struct {
	Table     string
	Partition *Partition
	Limit     int
	Cursor    *Cursor
	Direction Direction
	// Now bounds descending listings that have no cursor. Zero means time.Now.
	Now time.Time
}

// Page is one page of results. NextCursor is nil on the last page.
type Page[T any] struct {
	Items        []T     `json:"items"`
	NextCursor   *string `json:"next_cursor"`
	NextCursorID *uint   `json:"next_cursor_id,omitempty"`
	HasMore      bool    `json:"has_more"`
}

// ClampLimit forces n into [MinLimit, MaxLimit].
func ClampLimit(n int) int {
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// ParseLimit returns def for an absent or non-numeric value and the clamped
// value otherwise.
func ParseLimit(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ClampLimit(def)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return ClampLimit(def)
	}
	return ClampLimit(n)
}

// ParseCursor builds a cursor from its timestamp and optional id parameters.
// An empty timestamp yields a nil cursor.
func ParseCursor(rawTime, rawID string) (*Cursor, error) {
	rawTime = strings.TrimSpace(rawTime)
	if rawTime == "" {
		return nil, nil
	}
	ts, err := parseTimestamp(rawTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not an RFC 3339 timestamp", ErrInvalidCursor, rawTime)
	}
	cur := &Cursor{CreatedAt: ts.UTC()}

	rawID = strings.TrimSpace(rawID)
	if rawID != "" {
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: cursor_id %q", ErrInvalidCursor, rawID)
		}
		cur.ID = uint(id)
	}
	return cur, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	var lastErr error
	for _, layout := range layouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Encode formats a cursor timestamp for a response.
func Encode(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// Scope filters and orders a query for req. It does not apply the limit.
func Scope(req Request) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		createdAt, id := column(req.Table, "created_at"), column(req.Table, "id")

		if req.Partition != nil {
			db = db.Where(column(req.Table, req.Partition.Column)+" = ?", req.Partition.Value)
		}

		op, order := "<", "DESC"
		if req.Direction == Ascending {
			op, order = ">", "ASC"
		}

		switch cur := req.Cursor; {
		case cur != nil && cur.ID != 0:
			db = db.Where(
				fmt.Sprintf("(%s %s ? OR (%s = ? AND %s %s ?))", createdAt, op, createdAt, id, op),
				cur.CreatedAt, cur.CreatedAt, cur.ID,
			)
		case cur != nil:
			db = db.Where(fmt.Sprintf("%s %s ?", createdAt, op), cur.CreatedAt)
		case req.Direction == Descending:
			now := req.Now
			if now.IsZero() {
				now = time.Now()
			}
			db = db.Where(createdAt+" <= ?", now.UTC())
		}

		return db.Order(createdAt + " " + order).Order(id + " " + order)
	}
}

// Fetch loads one page of T using req. key extracts the cursor position of a row.
func Fetch[T any](db *gorm.DB, req Request, key func(T) Cursor) (Page[T], error) {
	req.Limit = ClampLimit(req.Limit)

	var rows []T
	if err := db.Scopes(Scope(req)).Limit(req.Limit + 1).Find(&rows).Error; err != nil {
		return Page[T]{Items: []T{}}, err
	}

	page := Page[T]{Items: rows}
	if len(rows) > req.Limit {
		page.Items = rows[:req.Limit]
		page.HasMore = true
		last := key(page.Items[len(page.Items)-1])
		next := Encode(last.CreatedAt)
		nextID := last.ID
		page.NextCursor = &next
		page.NextCursorID = &nextID
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}

// Map converts the items of a page while keeping its cursor.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := Page[U]{
		Items:        make([]U, 0, len(p.Items)),
		NextCursor:   p.NextCursor,
		NextCursorID: p.NextCursorID,
		HasMore:      p.HasMore,
	}
	for _, item := range p.Items {
		out.Items = append(out.Items, fn(item))
	}
	return out
}

func column(table, name string) string {
	if table == "" {
		return name
	}
	return table + "." + name
}
