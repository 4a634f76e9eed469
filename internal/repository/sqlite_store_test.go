package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dm-relay/internal/domain"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	s := newSQLiteStore(t)
	_, found, err := s.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSQLiteStore_SaveThenLoad(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sess := domain.NewSession("123")
	sess.Profile["name"] = "Ana"
	sess.Append(domain.RoleUser, "hi")
	sess.Append(domain.RoleAssistant, "hello!")
	require.NoError(t, s.Save(ctx, "123", sess))

	got, found, err := s.Load(ctx, "123")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Ana", got.Profile["name"])
	require.Equal(t, sess.History, got.History)
	require.False(t, got.SentLink)
	require.False(t, got.LastSeen.IsZero())
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sess := domain.NewSession("123")
	sess.Append(domain.RoleUser, "first")
	require.NoError(t, s.Save(ctx, "123", sess))

	loaded, _, err := s.Load(ctx, "123")
	require.NoError(t, err)
	require.Equal(t, int64(1), loaded.Version)
	loaded.History = []domain.Turn{{Role: domain.RoleUser, Content: "second"}}
	loaded.SentLink = true
	require.NoError(t, s.Save(ctx, "123", loaded))

	got, _, err := s.Load(ctx, "123")
	require.NoError(t, err)
	require.Equal(t, []domain.Turn{{Role: domain.RoleUser, Content: "second"}}, got.History)
	require.True(t, got.SentLink)
	require.Equal(t, int64(2), got.Version)
}

func TestSQLiteStore_OverlappingSavesDoNotLoseTurns(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	seed := domain.NewSession("123")
	seed.Append(domain.RoleUser, "hi")
	require.NoError(t, s.Save(ctx, "123", seed))

	first, _, err := s.Load(ctx, "123")
	require.NoError(t, err)
	second, _, err := s.Load(ctx, "123")
	require.NoError(t, err)

	first.Append(domain.RoleUser, "from delivery one")
	require.NoError(t, s.Save(ctx, "123", first))

	second.Append(domain.RoleUser, "from delivery two")
	err = s.Save(ctx, "123", second)
	require.ErrorIs(t, err, domain.ErrSessionConflict)

	got, _, err := s.Load(ctx, "123")
	require.NoError(t, err)
	require.Equal(t, first.History, got.History)
}

func TestSQLiteStore_SaveTwiceOnlyMovesLastSeen(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	tick := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	sess := domain.NewSession("123")
	sess.Append(domain.RoleUser, "hi")
	require.NoError(t, s.Save(ctx, "123", sess))
	first, _, err := s.Load(ctx, "123")
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "123", sess))
	second, _, err := s.Load(ctx, "123")
	require.NoError(t, err)

	require.True(t, second.LastSeen.After(first.LastSeen))
	first.LastSeen, second.LastSeen = time.Time{}, time.Time{}
	require.Equal(t, first, second)
}

func TestSQLiteStore_ConcurrentSendersAreIndependent(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sender-%d", i)
			sess := domain.NewSession(id)
			sess.Append(domain.RoleUser, id)
			errs <- s.Save(ctx, id, sess)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("sender-%d", i)
		got, found, err := s.Load(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, id, got.History[0].Content)
	}
}

func TestSQLiteStore_Validation(t *testing.T) {
	_, err := NewSQLiteStore(" ")
	require.Error(t, err)
	_, err = SQLiteDSNForFile("")
	require.Error(t, err)

	s := newSQLiteStore(t)
	require.Error(t, s.Save(context.Background(), "", domain.Session{}))
	_, _, err = s.Load(context.Background(), "")
	require.Error(t, err)
}
