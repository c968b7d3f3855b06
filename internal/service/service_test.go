package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
	"resumeforge/internal/icons"
	"resumeforge/internal/render"
	"resumeforge/internal/retry"
	"resumeforge/internal/storage"
	"resumeforge/internal/store"
)

type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fakeObjects struct {
	mu       sync.Mutex
	objects  map[string][]byte
	puts     map[string]int
	deletes  []string
	failGet  map[string]bool
	failCopy map[string]bool
	noBucket bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		objects:  map[string][]byte{},
		puts:     map[string]int{},
		failGet:  map[string]bool{},
		failCopy: map[string]bool{},
	}
}

func (f *fakeObjects) IconBucket() string      { return "resume-icons" }
func (f *fakeObjects) ThumbnailBucket() string { return "resume-thumbnails" }

func (f *fakeObjects) PutObject(_ context.Context, _, key string, data []byte, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.puts[key]++
	return nil
}

func (f *fakeObjects) GetObject(_ context.Context, _, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noBucket {
		return nil, fmt.Errorf("get object resume-icons/%s: %w", key, storage.ErrBucketMissing)
	}
	if f.failGet[key] {
		return nil, errors.New("access denied")
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeObjects) CopyObject(_ context.Context, _, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCopy[src] {
		return errors.New("access denied")
	}
	data, ok := f.objects[src]
	if !ok {
		return storage.ErrObjectNotFound
	}
	f.objects[dst] = data
	return nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeObjects) PublicURL(bucket, key string) string {
	return "https://objects.example/" + bucket + "/" + key
}

func (f *fakeObjects) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

type fakeScheduler struct {
	mu    sync.Mutex
	err   error
	jobs  []render.Job
	files []string
}

func (f *fakeScheduler) Run(_ context.Context, job render.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	f.files = nil
	entries, err := os.ReadDir(job.SessionDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		f.files = append(f.files, e.Name())
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(job.OutputPath, []byte("%PDF-1.4 fake"), 0o600)
}

func (f *fakeScheduler) Close() error { return nil }

type fakeThumbs struct {
	err   error
	calls int
}

func (f *fakeThumbs) Derive(_ context.Context, pdfPath, ownerID, resumeID string) (string, error) {
	f.calls++
	if _, err := os.Stat(pdfPath); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://objects.example/resume-thumbnails/" + storage.ThumbnailKey(ownerID, resumeID) + "?v=1", nil
}

type fakePurge struct {
	mu   sync.Mutex
	keys map[string][]string
}

func (f *fakePurge) EnqueuePurge(_ context.Context, bucket string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string][]string{}
	}
	f.keys[bucket] = append(f.keys[bucket], keys...)
	return nil
}

type harness struct {
	svc     *Service
	store   *store.Store
	objects *fakeObjects
	sched   *fakeScheduler
	thumbs  *fakeThumbs
	purge   *fakePurge
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	clock := &tickingClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(db,
		store.WithRetryPolicy(retry.Policy{MaxRetries: 0, BaseDelay: time.Millisecond}),
		store.WithClock(clock.now),
	)
	h := &harness{
		store:   st,
		objects: newFakeObjects(),
		sched:   &fakeScheduler{},
		thumbs:  &fakeThumbs{},
		purge:   &fakePurge{},
	}
	h.svc = New(Deps{
		Store:      st,
		Objects:    h.objects,
		Reconciler: icons.NewReconciler(h.objects, st, nil, h.purge, quiet),
		Scheduler:  h.sched,
		Thumbnails: h.thumbs,
		Purge:      h.purge,
	}, Config{MaxResumes: 5, ListMax: 50, CopyConcurrency: 4, WorkDir: t.TempDir()}, quiet)
	h.svc.now = clock.now
	return h
}

func upload(name string, size int) icons.Upload {
	return icons.Upload{Filename: name, Data: base64.StdEncoding.EncodeToString([]byte(strings.Repeat(name[:1], size)))}
}

func janeInput(id string, uploads ...icons.Upload) SaveInput {
	return SaveInput{
		ID:          id,
		Title:       "Jane Doe",
		TemplateID:  "modern",
		ContactInfo: map[string]any{"name": "Jane"},
		Sections:    []any{},
		Icons:       uploads,
	}
}

func (h *harness) row(t *testing.T, owner, id string) *database.Resume {
	t.Helper()
	r, err := h.store.GetResume(context.Background(), id, owner, false)
	require.NoError(t, err)
	return r
}

func (h *harness) iconNames(t *testing.T, id string) []string {
	t.Helper()
	rows, err := h.store.GetIcons(context.Background(), id)
	require.NoError(t, err)
	var out []string
	for _, r := range rows {
		out = append(out, r.Filename)
	}
	return out
}

func TestSave_SkipsUnchangedContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)
	require.False(t, first.Skipped)
	before := h.row(t, "alice", first.ResumeID)

	second, err := h.svc.Save(ctx, "alice", janeInput(first.ResumeID))
	require.NoError(t, err)
	require.True(t, second.Skipped)
	require.Equal(t, first.ResumeID, second.ResumeID)

	after := h.row(t, "alice", first.ResumeID)
	require.True(t, before.UpdatedAt.Equal(after.UpdatedAt))

	prefs, err := h.svc.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, first.ResumeID, *prefs.LastEditedResumeID)
}

// resaveInput 模拟客户端把加载到的文档原样保存回来。
func resaveInput(t *testing.T, d *Detail) SaveInput {
	t.Helper()
	var contact map[string]any
	raw, err := json.Marshal(d.ContactInfo)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &contact))
	var sections []any
	raw, err = json.Marshal(d.Sections)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &sections))
	return SaveInput{
		ID:          d.ID,
		Title:       d.Title,
		TemplateID:  d.TemplateID,
		ContactInfo: contact,
		Sections:    sections,
	}
}

func TestSave_SkipsUnchangedAfterLoad(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	saved, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)
	created, err := h.svc.Create(ctx, "alice", CreateInput{TemplateID: "modern"})
	require.NoError(t, err)

	for _, id := range []string{saved.ResumeID, created.ResumeID} {
		detail, err := h.svc.Load(ctx, "alice", id)
		require.NoError(t, err)
		require.NotNil(t, detail.ContactInfo.SocialLinks)

		res, err := h.svc.Save(ctx, "alice", resaveInput(t, detail))
		require.NoError(t, err)
		require.True(t, res.Skipped, "resume %s", id)
	}
}

func TestSave_ChangedContentAdvancesUpdatedAt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)
	before := h.row(t, "alice", first.ResumeID)

	in := janeInput(first.ResumeID)
	in.ContactInfo = map[string]any{"name": "Jane Smith"}
	res, err := h.svc.Save(ctx, "alice", in)
	require.NoError(t, err)
	require.False(t, res.Skipped)

	after := h.row(t, "alice", first.ResumeID)
	require.True(t, after.UpdatedAt.After(before.UpdatedAt))
	require.True(t, before.CreatedAt.Equal(after.CreatedAt))
}

func TestSave_ReconcilesIcons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Save(ctx, "alice", janeInput("", upload("a.png", 100), upload("b.png", 50)))
	require.NoError(t, err)
	id := first.ResumeID
	require.Equal(t, []string{"a.png", "b.png"}, h.iconNames(t, id))

	_, err = h.svc.Save(ctx, "alice", janeInput(id, upload("a.png", 100), upload("c.png", 30)))
	require.NoError(t, err)

	require.Equal(t, []string{"a.png", "c.png"}, h.iconNames(t, id))
	require.Equal(t, 1, h.objects.puts[storage.IconKey("alice", id, "a.png")])
	require.Equal(t, 1, h.objects.puts[storage.IconKey("alice", id, "c.png")])
	require.False(t, h.objects.has(storage.IconKey("alice", id, "b.png")))
}

func TestSave_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := janeInput("")
	in.TemplateID = ""
	_, err := h.svc.Save(ctx, "alice", in)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	in = janeInput("")
	in.TemplateID = "nope"
	_, err = h.svc.Save(ctx, "alice", in)
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	in = janeInput("")
	in.Sections = []any{map[string]any{"name": "X", "type": "carousel"}}
	_, err = h.svc.Save(ctx, "alice", in)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	in = janeInput("")
	in.Title = strings.Repeat("x", 201)
	_, err = h.svc.Save(ctx, "alice", in)
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreate_QuotaCountsLiveOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		res, err := h.svc.Create(ctx, "alice", CreateInput{TemplateID: "modern"})
		require.NoError(t, err)
		ids = append(ids, res.ResumeID)
	}
	_, err := h.svc.Create(ctx, "alice", CreateInput{TemplateID: "modern"})
	require.True(t, apperr.Is(err, apperr.KindQuotaExceeded))

	_, err = h.svc.Save(ctx, "alice", janeInput(""))
	require.True(t, apperr.Is(err, apperr.KindQuotaExceeded))

	require.NoError(t, h.svc.Delete(ctx, "alice", ids[0]))
	_, err = h.svc.Create(ctx, "alice", CreateInput{TemplateID: "classic"})
	require.NoError(t, err)

	n, err := h.svc.Count(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
}

func TestCreate_SkeletonAndUnknownTemplate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, "alice", CreateInput{TemplateID: "missing"})
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	no := false
	res, err := h.svc.Create(ctx, "alice", CreateInput{TemplateID: "modern", LoadExample: &no})
	require.NoError(t, err)

	detail, err := h.svc.Load(ctx, "alice", res.ResumeID)
	require.NoError(t, err)
	require.Empty(t, detail.ContactInfo.Name)
	require.NotEmpty(t, detail.Sections)
	for _, s := range detail.Sections {
		require.NotEmpty(t, s.Name)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)

	_, err = h.svc.Load(ctx, "bob", res.ResumeID)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = h.svc.Rename(ctx, "bob", res.ResumeID, "Mine")
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	require.True(t, apperr.Is(h.svc.Delete(ctx, "bob", res.ResumeID), apperr.KindNotFound))
	_, err = h.svc.Duplicate(ctx, "bob", res.ResumeID, "")
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = h.svc.Render(ctx, "bob", res.ResumeID, false)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = h.svc.Save(ctx, "bob", janeInput(res.ResumeID))
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDelete_IsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	older, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)
	newer, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(ctx, "alice", newer.ResumeID))
	require.True(t, apperr.Is(h.svc.Delete(ctx, "alice", newer.ResumeID), apperr.KindNotFound))
	_, err = h.svc.Load(ctx, "alice", newer.ResumeID)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = h.svc.Rename(ctx, "alice", newer.ResumeID, "x")
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = h.svc.Render(ctx, "alice", newer.ResumeID, false)
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	list, err := h.svc.List(ctx, "alice", 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, list.TotalCount)
	require.Equal(t, older.ResumeID, list.Resumes[0].ID)

	prefs, err := h.svc.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, older.ResumeID, *prefs.LastEditedResumeID)

	require.NoError(t, h.svc.Delete(ctx, "alice", older.ResumeID))
	prefs, err = h.svc.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, prefs.LastEditedResumeID)
}

func TestRename_TitleBoundaries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)

	for _, title := range []string{"x", strings.Repeat("y", 200)} {
		got, err := h.svc.Rename(ctx, "alice", res.ResumeID, title)
		require.NoError(t, err)
		require.Equal(t, title, got)
		detail, err := h.svc.Load(ctx, "alice", res.ResumeID)
		require.NoError(t, err)
		require.Equal(t, title, detail.Title)
	}
	for _, title := range []string{"", "   ", strings.Repeat("z", 201)} {
		_, err := h.svc.Rename(ctx, "alice", res.ResumeID, title)
		require.True(t, apperr.Is(err, apperr.KindValidation), title)
	}
}

func TestList_CapsLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.svc.Save(ctx, "alice", janeInput(""))
		require.NoError(t, err)
	}

	page, err := h.svc.List(ctx, "alice", 0, 100)
	require.NoError(t, err)
	require.Equal(t, 50, page.Limit)
	require.Len(t, page.Resumes, 3)
	require.True(t, !page.Resumes[0].UpdatedAt.Before(page.Resumes[1].UpdatedAt))

	page, err = h.svc.List(ctx, "alice", 10, 5)
	require.NoError(t, err)
	require.Empty(t, page.Resumes)
	require.EqualValues(t, 3, page.TotalCount)
}

func TestLoad_PreservesUpdatedAt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Save(ctx, "alice", janeInput("", upload("a.png", 10)))
	require.NoError(t, err)
	before := h.row(t, "alice", res.ResumeID)

	detail, err := h.svc.Load(ctx, "alice", res.ResumeID)
	require.NoError(t, err)
	require.Equal(t, []Icon{{
		Filename:   "a.png",
		StorageURL: "https://objects.example/resume-icons/" + storage.IconKey("alice", res.ResumeID, "a.png"),
	}}, detail.Icons)
	require.NotNil(t, detail.LastAccessedAt)

	after := h.row(t, "alice", res.ResumeID)
	require.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	require.NotNil(t, after.LastAccessedAt)
}

func TestDuplicate_CopiesIcons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Save(ctx, "alice", janeInput("", upload("a.png", 10), upload("b.png", 20), upload("c.png", 30)))
	require.NoError(t, err)
	h.objects.failCopy[storage.IconKey("alice", res.ResumeID, "b.png")] = true

	dupID, err := h.svc.Duplicate(ctx, "alice", res.ResumeID, "")
	require.NoError(t, err)
	require.NotEqual(t, res.ResumeID, dupID)

	dup := h.row(t, "alice", dupID)
	require.Equal(t, "Jane Doe (Copy)", dup.Title)
	require.Nil(t, dup.ContentHash)
	require.Equal(t, []string{"a.png", "c.png"}, h.iconNames(t, dupID))
	require.True(t, h.objects.has(storage.IconKey("alice", dupID, "a.png")))
	require.True(t, h.objects.has(storage.IconKey("alice", dupID, "c.png")))
	require.Equal(t, []string{"a.png", "b.png", "c.png"}, h.iconNames(t, res.ResumeID))

	_, err = h.svc.Duplicate(ctx, "alice", res.ResumeID, strings.Repeat("n", 201))
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDuplicate_Quota(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var id string
	for i := 0; i < 5; i++ {
		res, err := h.svc.Save(ctx, "alice", janeInput(""))
		require.NoError(t, err)
		id = res.ResumeID
	}
	_, err := h.svc.Duplicate(ctx, "alice", id, "Another")
	require.True(t, apperr.Is(err, apperr.KindQuotaExceeded))
}

func iconSections(icon string) []any {
	return []any{
		map[string]any{
			"name": "Skills",
			"type": "icon-list",
			"content": []any{
				map[string]any{"name": "Go", "icon": icon},
			},
		},
	}
}

func TestRender_MaterializesIconsAndPreservesUpdatedAt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := janeInput("", upload("mine.png", 12))
	in.Sections = iconSections("mine.png")
	in.Sections = append(in.Sections, iconSections("go.png")...)
	res, err := h.svc.Save(ctx, "alice", in)
	require.NoError(t, err)
	before := h.row(t, "alice", res.ResumeID)

	out, err := h.svc.Render(ctx, "alice", res.ResumeID, true)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 fake", string(out.PDF))
	require.True(t, out.Inline)
	require.Equal(t, "Jane_Doe.pdf", out.Filename)
	require.NotNil(t, out.ThumbnailURL)

	require.Len(t, h.sched.jobs, 1)
	job := h.sched.jobs[0]
	require.Equal(t, render.EngineHTML, job.Engine)
	for _, name := range []string{"mine.png", "go.png", "location.png", "email.png", "phone.png", "github.png", "resume.yaml"} {
		require.Contains(t, h.sched.files, name)
	}
	_, err = os.Stat(job.SessionDir)
	require.True(t, os.IsNotExist(err))

	after := h.row(t, "alice", res.ResumeID)
	require.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	require.NotNil(t, after.PDFGeneratedAt)
	require.Equal(t, *out.ThumbnailURL, *after.ThumbnailURL)
}

func TestRender_LatexEngineForClassic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := janeInput("")
	in.TemplateID = "classic"
	res, err := h.svc.Save(ctx, "alice", in)
	require.NoError(t, err)

	_, err = h.svc.Render(ctx, "alice", res.ResumeID, false)
	require.NoError(t, err)
	require.Equal(t, render.EngineLaTeX, h.sched.jobs[0].Engine)
}

func TestRender_MissingIcons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := janeInput("")
	in.Sections = iconSections("company_acme.png")
	res, err := h.svc.Save(ctx, "alice", in)
	require.NoError(t, err)

	_, err = h.svc.Render(ctx, "alice", res.ResumeID, false)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindMissingIcons, e.Kind)
	require.Equal(t, []string{"company_acme.png"}, e.MissingIcons)
	require.Empty(t, h.sched.jobs)
}

func TestRender_UnreadableUploadFallsBackToDefault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := janeInput("", upload("go.png", 8))
	in.Sections = iconSections("go.png")
	res, err := h.svc.Save(ctx, "alice", in)
	require.NoError(t, err)
	h.objects.failGet[storage.IconKey("alice", res.ResumeID, "go.png")] = true

	_, err = h.svc.Render(ctx, "alice", res.ResumeID, false)
	require.NoError(t, err)
	require.Contains(t, h.sched.files, "go.png")
}

func TestRender_MissingIconBucketIsDependency(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := janeInput("", upload("go.png", 8))
	in.Sections = iconSections("go.png")
	res, err := h.svc.Save(ctx, "alice", in)
	require.NoError(t, err)
	h.objects.noBucket = true

	_, err = h.svc.Render(ctx, "alice", res.ResumeID, false)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindRenderFailed, e.Kind)
	require.Equal(t, "dependency", e.ErrorType)
	require.False(t, e.Retryable)
	require.Empty(t, h.sched.jobs)
}

func TestRender_ClassifiedFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)

	h.sched.err = &render.JobError{JobID: "j", Message: "latex error: undefined control sequence", Class: render.ClassData}
	_, err = h.svc.Render(ctx, "alice", res.ResumeID, false)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindRenderFailed, e.Kind)
	require.False(t, e.Retryable)
	require.Equal(t, "data", e.ErrorType)
	require.NotContains(t, e.Message, "undefined control sequence")

	_, err = h.svc.DeriveThumbnail(ctx, "alice", res.ResumeID)
	require.True(t, apperr.Is(err, apperr.KindRenderFailed))

	h.sched.err = render.WithClass(render.ClassNetwork, errors.New("connection refused"))
	thumb, err := h.svc.DeriveThumbnail(ctx, "alice", res.ResumeID)
	require.NoError(t, err)
	require.Nil(t, thumb.ThumbnailURL)
	require.True(t, thumb.Retryable)
	require.Equal(t, "network", thumb.ErrorType)
}

func TestDeriveThumbnail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)

	thumb, err := h.svc.DeriveThumbnail(ctx, "alice", res.ResumeID)
	require.NoError(t, err)
	require.NotNil(t, thumb.ThumbnailURL)
	require.NotNil(t, thumb.PDFGeneratedAt)
	require.False(t, thumb.Retryable)
}

func TestDeriveThumbnail_StorageTimeoutIsRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Save(ctx, "alice", janeInput(""))
	require.NoError(t, err)
	previous := "https://objects.example/resume-thumbnails/old.png?v=1"
	require.NoError(t, h.store.PatchResume(ctx, res.ResumeID, "alice", map[string]any{"thumbnail_url": previous}, true))

	h.thumbs.err = render.WithClass(render.ClassStorage, errors.New("i/o timeout"))
	thumb, err := h.svc.DeriveThumbnail(ctx, "alice", res.ResumeID)
	require.NoError(t, err)
	require.Nil(t, thumb.ThumbnailURL)
	require.True(t, thumb.Retryable)
	require.Equal(t, "storage", thumb.ErrorType)

	require.Equal(t, previous, *h.row(t, "alice", res.ResumeID).ThumbnailURL)
}

func TestPreferences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	prefs, err := h.svc.GetPreferences(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", prefs.UserID)
	require.JSONEq(t, `{}`, string(prefs.Preferences))

	id := "r-1"
	prefs, err = h.svc.SetPreferences(ctx, "alice", PreferencesInput{LastEditedResumeID: &id, Preferences: []byte(`{"theme":"dark"}`)})
	require.NoError(t, err)
	require.Equal(t, "r-1", *prefs.LastEditedResumeID)

	prefs, err = h.svc.SetPreferences(ctx, "alice", PreferencesInput{Preferences: []byte(`{"theme":"light"}`)})
	require.NoError(t, err)
	require.Equal(t, "r-1", *prefs.LastEditedResumeID)
	require.JSONEq(t, `{"theme":"light"}`, string(prefs.Preferences))

	_, err = h.svc.SetPreferences(ctx, "alice", PreferencesInput{Preferences: []byte(`[1,2]`)})
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMigrateOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Save(ctx, "anon-1", janeInput("", upload("a.png", 10), upload("b.png", 20)))
	require.NoError(t, err)
	id := res.ResumeID
	require.NoError(t, h.store.PatchResume(ctx, id, "anon-1", map[string]any{"thumbnail_url": "https://x/thumb.png"}, true))
	h.objects.failCopy[storage.IconKey("anon-1", id, "b.png")] = true

	out, err := h.svc.MigrateOwner(ctx, "anon-1", "alice")
	require.NoError(t, err)
	require.Equal(t, MigrateResult{Resumes: 1, Icons: 2, CopyFailed: 1}, out)

	_, err = h.svc.Load(ctx, "anon-1", id)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	moved := h.row(t, "alice", id)
	require.Nil(t, moved.ThumbnailURL)

	rows, err := h.store.GetIcons(ctx, id)
	require.NoError(t, err)
	keys := map[string]string{}
	for _, r := range rows {
		require.Equal(t, "alice", r.OwnerID)
		keys[r.Filename] = r.StorageKey
	}
	require.Equal(t, storage.IconKey("alice", id, "a.png"), keys["a.png"])
	require.Equal(t, storage.IconKey("anon-1", id, "b.png"), keys["b.png"])
	require.True(t, h.objects.has(keys["a.png"]))

	purged := h.purge.keys["resume-icons"]
	sort.Strings(purged)
	require.Equal(t, []string{storage.IconKey("anon-1", id, "a.png")}, purged)
	require.Equal(t, []string{storage.ThumbnailKey("anon-1", id)}, h.purge.keys["resume-thumbnails"])
}

func TestMigrateOwner_RespectsTargetQuota(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := h.svc.Save(ctx, "alice", janeInput(""))
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := h.svc.Save(ctx, "anon-1", janeInput(""))
		require.NoError(t, err)
	}

	_, err := h.svc.MigrateOwner(ctx, "anon-1", "alice")
	require.True(t, apperr.Is(err, apperr.KindQuotaExceeded))

	n, err := h.svc.Count(ctx, "anon-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestPDFFilename(t *testing.T) {
	require.Equal(t, "Jane_Doe.pdf", PDFFilename(" Jane Doe "))
	require.Equal(t, "resume.pdf", PDFFilename("简历"))
	require.Equal(t, "a-b_c.pdf", PDFFilename("a-b_c/"))
}
