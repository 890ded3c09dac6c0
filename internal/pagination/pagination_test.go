package pagination

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type entry struct {
	ID        uint `gorm:"primaryKey"`
	Bucket    uint
	CreatedAt time.Time
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&entry{}))
	return db
}

func seed(t *testing.T, db *gorm.DB, rows ...entry) {
	t.Helper()
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}
}

func entryKey(e entry) Cursor { return Cursor{CreatedAt: e.CreatedAt, ID: e.ID} }

func walk(t *testing.T, db *gorm.DB, req Request) ([][]uint, []uint) {
	t.Helper()
	var pages [][]uint
	var all []uint
	for i := 0; i < 20; i++ {
		page, err := Fetch(db, req, entryKey)
		require.NoError(t, err)
		ids := make([]uint, 0, len(page.Items))
		for _, e := range page.Items {
			ids = append(ids, e.ID)
		}
		pages = append(pages, ids)
		all = append(all, ids...)
		if page.NextCursor == nil {
			return pages, all
		}
		cur, err := ParseCursor(*page.NextCursor, fmt.Sprint(*page.NextCursorID))
		require.NoError(t, err)
		req.Cursor = cur
	}
	t.Fatal("pagination did not terminate")
	return nil, nil
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		def  int
		want int
	}{
		{"", DefaultPostLimit, 100},
		{"", DefaultCommentLimit, 10},
		{"abc", DefaultCommentLimit, 10},
		{"0", DefaultPostLimit, 1},
		{"-5", DefaultPostLimit, 1},
		{"250", DefaultCommentLimit, 100},
		{"42", DefaultCommentLimit, 42},
		{" 7 ", DefaultPostLimit, 7},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLimit(tt.raw, tt.def), "raw=%q", tt.raw)
	}
}

func TestParseCursor(t *testing.T) {
	t.Parallel()

	cur, err := ParseCursor("", "")
	require.NoError(t, err)
	assert.Nil(t, cur)

	cur, err = ParseCursor("2024-03-01T10:00:00.5+02:00", "17")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.True(t, time.Date(2024, 3, 1, 8, 0, 0, 500000000, time.UTC).Equal(cur.CreatedAt))
	assert.Equal(t, uint(17), cur.ID)

	cur, err = ParseCursor("2024-03-01T10:00:00.000Z", "")
	require.NoError(t, err)
	assert.Equal(t, uint(0), cur.ID)

	_, err = ParseCursor("yesterday", "")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = ParseCursor("2024-03-01T10:00:00Z", "x")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Ascending, ParseDirection("ASC", Descending))
	assert.Equal(t, Descending, ParseDirection("desc", Ascending))
	assert.Equal(t, Ascending, ParseDirection("", Ascending))
}

func TestFetchDescendingPages(t *testing.T) {
	db := openDB(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seed(t, db, entry{CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	pages, all := walk(t, db, Request{Table: "entries", Limit: 2})

	require.Len(t, pages, 3)
	assert.Len(t, pages[0], 2)
	assert.Len(t, pages[1], 2)
	assert.Len(t, pages[2], 1)
	assert.Equal(t, []uint{5, 4, 3, 2, 1}, all)
}

func TestFetchTieBreakOnID(t *testing.T) {
	db := openDB(t)
	same := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seed(t, db, entry{CreatedAt: same})
	}
	seed(t, db, entry{CreatedAt: same.Add(-time.Minute)})

	_, all := walk(t, db, Request{Table: "entries", Limit: 1})

	assert.Equal(t, []uint{4, 3, 2, 1, 5}, all)
}

func TestFetchAscendingWithinPartition(t *testing.T) {
	db := openDB(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		seed(t, db, entry{Bucket: uint(i%2) + 1, CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	pages, all := walk(t, db, Request{
		Table:     "entries",
		Partition: &Partition{Column: "bucket", Value: uint(1)},
		Limit:     2,
		Direction: Ascending,
	})

	assert.Len(t, pages, 2)
	assert.Equal(t, []uint{1, 3, 5}, all)
}

func TestFetchDescendingDefaultsToNow(t *testing.T) {
	db := openDB(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	seed(t, db,
		entry{CreatedAt: now.Add(-time.Hour)},
		entry{CreatedAt: now.Add(time.Hour)},
	)

	page, err := Fetch(db, Request{Table: "entries", Limit: 10, Now: now}, entryKey)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, uint(1), page.Items[0].ID)
	assert.Nil(t, page.NextCursor)
	assert.False(t, page.HasMore)
}

func TestFetchEmpty(t *testing.T) {
	db := openDB(t)

	page, err := Fetch(db, Request{Table: "entries", Limit: 0}, entryKey)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.NextCursor)
}

func TestMapKeepsCursor(t *testing.T) {
	t.Parallel()

	next := "2024-01-01T00:00:00Z"
	id := uint(9)
	in := Page[int]{Items: []int{1, 2}, NextCursor: &next, NextCursorID: &id, HasMore: true}

	out := Map(in, func(n int) string { return fmt.Sprint(n * 10) })

	assert.Equal(t, []string{"10", "20"}, out.Items)
	assert.Equal(t, &next, out.NextCursor)
	assert.True(t, out.HasMore)
}
