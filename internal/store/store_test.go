package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
	"resumeforge/internal/retry"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *fixedClock) {
	t.Helper()
	clock := &fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := New(newTestDB(t),
		WithRetryPolicy(retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}),
		WithClock(clock.now),
	)
	return s, clock
}

func seedResume(t *testing.T, s *Store, owner string, updated time.Time) *database.Resume {
	t.Helper()
	r := &database.Resume{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		Title:       "Resume",
		TemplateID:  "modern",
		ContactInfo: []byte(`{"name":"Jane"}`),
		Sections:    []byte(`[]`),
		CreatedAt:   updated,
		UpdatedAt:   updated,
	}
	require.NoError(t, s.UpsertResume(context.Background(), r))
	return r
}

func TestGetResume_ScopedByOwner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r := seedResume(t, s, "alice", time.Now().UTC())

	got, err := s.GetResume(ctx, r.ID, "alice", true)
	require.NoError(t, err)
	require.Equal(t, "Resume", got.Title)

	_, err = s.GetResume(ctx, r.ID, "bob", true)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSoftDelete_HidesResumeAndIsNotIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r := seedResume(t, s, "alice", time.Now().UTC())

	require.NoError(t, s.SoftDelete(ctx, r.ID, "alice"))

	_, err := s.GetResume(ctx, r.ID, "alice", true)
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := s.GetResume(ctx, r.ID, "alice", false)
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)

	err = s.SoftDelete(ctx, r.ID, "alice")
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	n, err := s.CountLive(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestListResumes_OrdersAndPaginates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := seedResume(t, s, "alice", base)
	newer := seedResume(t, s, "alice", base.Add(time.Hour))
	deleted := seedResume(t, s, "alice", base.Add(2*time.Hour))
	seedResume(t, s, "bob", base)
	require.NoError(t, s.SoftDelete(ctx, deleted.ID, "alice"))

	rows, total, err := s.ListResumes(ctx, "alice", 0, 50)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, rows, 2)
	require.Equal(t, newer.ID, rows[0].ID)
	require.Equal(t, older.ID, rows[1].ID)

	rows, total, err = s.ListResumes(ctx, "alice", 10, 50)
	require.NoError(t, err)
	require.Empty(t, rows)
	require.EqualValues(t, 2, total)
}

func TestEnsureQuota(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		seedResume(t, s, "alice", time.Now().UTC())
	}
	require.NoError(t, s.EnsureQuota(ctx, "alice", 3))
	err := s.EnsureQuota(ctx, "alice", 2)
	require.True(t, apperr.Is(err, apperr.KindQuotaExceeded))
}

func TestUpsertResume_RejectsForeignOwner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r := seedResume(t, s, "alice", time.Now().UTC())

	hijack := *r
	hijack.OwnerID = "bob"
	hijack.Title = "mine now"
	err := s.UpsertResume(ctx, &hijack)
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := s.GetResume(ctx, r.ID, "alice", true)
	require.NoError(t, err)
	require.Equal(t, "Resume", got.Title)
}

func TestPatchResume_PreservesUpdatedAt(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := seedResume(t, s, "alice", created)

	url := "https://cdn.example/thumb.png?v=1"
	require.NoError(t, s.PatchResume(ctx, r.ID, "alice", map[string]any{
		"thumbnail_url":    url,
		"pdf_generated_at": clock.t,
	}, true))

	got, err := s.GetResume(ctx, r.ID, "alice", true)
	require.NoError(t, err)
	require.True(t, got.UpdatedAt.Equal(created))
	require.Equal(t, url, *got.ThumbnailURL)

	require.NoError(t, s.PatchResume(ctx, r.ID, "alice", map[string]any{"title": "Renamed"}, false))
	got, err = s.GetResume(ctx, r.ID, "alice", true)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Title)
	require.True(t, got.UpdatedAt.Equal(clock.t))

	err = s.PatchResume(ctx, r.ID, "bob", map[string]any{"title": "x"}, false)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestReplaceIcons(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r := seedResume(t, s, "alice", time.Now().UTC())

	icon := func(name string, size int64) database.ResumeIcon {
		return database.ResumeIcon{ID: uuid.NewString(), OwnerID: "alice", Filename: name, StorageKey: "alice/" + r.ID + "/" + name, FileSize: size}
	}
	require.NoError(t, s.ReplaceIcons(ctx, r.ID, []database.ResumeIcon{icon("a.png", 100), icon("b.png", 50)}))
	require.NoError(t, s.ReplaceIcons(ctx, r.ID, []database.ResumeIcon{icon("a.png", 100), icon("c.png", 30)}))

	rows, err := s.GetIcons(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "a.png", rows[0].Filename)
	require.Equal(t, "c.png", rows[1].Filename)

	require.NoError(t, s.DeleteIconsByFilename(ctx, r.ID, []string{"c.png"}))
	rows, err = s.GetIcons(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestReplaceIcons_DuplicateFilenameIsConflict(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r := seedResume(t, s, "alice", time.Now().UTC())
	dup := []database.ResumeIcon{
		{ID: uuid.NewString(), OwnerID: "alice", Filename: "a.png", StorageKey: "k1"},
		{ID: uuid.NewString(), OwnerID: "alice", Filename: "a.png", StorageKey: "k2"},
	}
	err := s.ReplaceIcons(ctx, r.ID, dup)
	require.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
}

func TestPreferences_LazyCreateAndUpsert(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	prefs, err := s.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, prefs.LastEditedResumeID)
	require.JSONEq(t, `{}`, string(prefs.Preferences))

	id := "r-1"
	require.NoError(t, s.SetLastEdited(ctx, "alice", &id))
	prefs, err = s.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, id, *prefs.LastEditedResumeID)

	prefs.Preferences = []byte(`{"theme":"dark"}`)
	require.NoError(t, s.UpsertPreferences(ctx, prefs))
	prefs, err = s.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	require.JSONEq(t, `{"theme":"dark"}`, string(prefs.Preferences))
	require.Equal(t, id, *prefs.LastEditedResumeID)
}

func TestReparentOwner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r := seedResume(t, s, "anon", time.Now().UTC())
	require.NoError(t, s.ReplaceIcons(ctx, r.ID, []database.ResumeIcon{
		{ID: uuid.NewString(), OwnerID: "anon", Filename: "a.png", StorageKey: "anon/" + r.ID + "/a.png", FileSize: 10},
	}))

	moved, err := s.ReparentOwner(ctx, "anon", "alice", 5, func(icon database.ResumeIcon, owner string) (string, string) {
		return owner + "/" + icon.ResumeID + "/" + icon.Filename, "https://cdn/" + owner
	})
	require.NoError(t, err)
	require.Len(t, moved.Resumes, 1)
	require.Len(t, moved.Icons, 1)
	require.Equal(t, "anon/"+r.ID+"/a.png", moved.Icons[0].StorageKey)

	_, err = s.GetResume(ctx, r.ID, "alice", true)
	require.NoError(t, err)
	icons, err := s.GetIcons(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "alice/"+r.ID+"/a.png", icons[0].StorageKey)
	require.Equal(t, "alice", icons[0].OwnerID)
}

func TestReparentOwner_RespectsTargetQuota(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	seedResume(t, s, "anon", time.Now().UTC())
	seedResume(t, s, "alice", time.Now().UTC())

	_, err := s.ReparentOwner(ctx, "anon", "alice", 1, func(icon database.ResumeIcon, owner string) (string, string) {
		return icon.StorageKey, icon.StorageURL
	})
	require.True(t, apperr.Is(err, apperr.KindQuotaExceeded))

	n, err := s.CountLive(ctx, "anon")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestClassify(t *testing.T) {
	require.NoError(t, classify("op", nil))
	require.True(t, apperr.Is(classify("op", gorm.ErrRecordNotFound), apperr.KindNotFound))
	require.True(t, apperr.Is(classify("op", gorm.ErrDuplicatedKey), apperr.KindConflict))
	require.True(t, apperr.Is(classify("op", &retry.ExhaustedError{Attempts: 4, Err: errors.New("timeout")}), apperr.KindTransient))
	require.True(t, apperr.Is(classify("op", errors.New("syntax error")), apperr.KindPermanent))
}
