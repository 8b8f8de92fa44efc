package directory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededMemory() *Memory {
	return NewMemory(SeedContacts()...)
}

func TestMatchTokens(t *testing.T) {
	tests := []struct {
		query string
		name  string
		want  bool
	}{
		{"john", "John Smith", true},
		{"john smith", "John Smith", true},
		{"smith john", "John Smith", true},
		{"john", "Eve Johnson", false}, // token match, not substring
		{"jo", "John Smith", false},
		{"", "John Smith", false},
		{"alice", "Alice", true},
	}

	for _, tt := range tests {
		t.Run(tt.query+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchTokens(tt.query, tt.name))
		})
	}
}

func TestMatchSubstring(t *testing.T) {
	assert.True(t, matchSubstring("john", "John Smith"))
	assert.True(t, matchSubstring("john", "Eve Johnson"))
	assert.True(t, matchSubstring("oh", "John Doe"))
	assert.False(t, matchSubstring("", "John Doe"))
	assert.False(t, matchSubstring("zelda", "John Doe"))
}

func TestMemoryFindAmbiguous(t *testing.T) {
	dir := seededMemory()

	matches, err := dir.Find(context.Background(), "John")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	names := []string{matches[0].Name, matches[1].Name}
	assert.Contains(t, names, "John Smith")
	assert.Contains(t, names, "John Doe")
}

func TestMemoryFindUnique(t *testing.T) {
	dir := seededMemory()

	matches, err := dir.Find(context.Background(), "John Smith")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "john.smith@example.com", matches[0].Email)
}

func TestMemoryFindNone(t *testing.T) {
	dir := seededMemory()

	matches, err := dir.Find(context.Background(), "Zelda")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemorySkipsInactive(t *testing.T) {
	dir := NewMemory(Contact{Name: "Ghost User", Email: "ghost@example.com", Active: false})

	matches, err := dir.Find(context.Background(), "Ghost")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.db")

	dir, err := OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = dir.Close() }()

	ctx := context.Background()

	inserted, err := dir.Seed(ctx, SeedContacts())
	require.NoError(t, err)
	assert.Equal(t, len(SeedContacts()), inserted)

	// Seeding again is a no-op.
	inserted, err = dir.Seed(ctx, SeedContacts())
	require.NoError(t, err)
	assert.Zero(t, inserted)

	matches, err := dir.Find(ctx, "John")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = dir.FindContaining(ctx, "john")
	require.NoError(t, err)
	assert.Len(t, matches, 3) // both Johns plus Eve Johnson

	matches, err = dir.Find(ctx, "Carol Martinez")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Tech Lead", matches[0].Role)
}
