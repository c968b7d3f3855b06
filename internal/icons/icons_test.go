package icons

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
)

type fakeObjects struct {
	objects    map[string][]byte
	puts       []string
	deletes    []string
	failPut    map[string]bool
	failDelete bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, failPut: map[string]bool{}}
}

func (f *fakeObjects) IconBucket() string { return "resume-icons" }

func (f *fakeObjects) PutObject(_ context.Context, _, key string, data []byte, _, _ string) error {
	if f.failPut[key] {
		return errors.New("connection reset by peer")
	}
	f.puts = append(f.puts, key)
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, _, key string) error {
	if f.failDelete {
		return errors.New("timeout")
	}
	f.deletes = append(f.deletes, key)
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) PublicURL(bucket, key string) string {
	return "https://objects.example/" + bucket + "/" + key
}

type fakeRows struct {
	rows map[string][]database.ResumeIcon
	err  error
}

func (f *fakeRows) ReplaceIcons(_ context.Context, resumeID string, rows []database.ResumeIcon) error {
	if f.err != nil {
		return f.err
	}
	f.rows[resumeID] = append([]database.ResumeIcon(nil), rows...)
	return nil
}

type fakePurge struct {
	keys []string
}

func (f *fakePurge) EnqueuePurge(_ context.Context, _ string, keys []string) error {
	f.keys = append(f.keys, keys...)
	return nil
}

type rejectScanner struct{ name []byte }

func (s rejectScanner) Scan(_ context.Context, data []byte) error {
	if string(data) == string(s.name) {
		return ErrInfected
	}
	return nil
}

func payload(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func desired(name string, data []byte) Desired {
	return Desired{Filename: name, Data: data, Size: int64(len(data)), MimeType: MimeFromFilename(name)}
}

func filenames(rows []database.ResumeIcon) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Filename)
	}
	sort.Strings(out)
	return out
}

func TestMimeFromFilename(t *testing.T) {
	require.Equal(t, "image/png", MimeFromFilename("a.png"))
	require.Equal(t, "image/jpeg", MimeFromFilename("a.JPG"))
	require.Equal(t, "image/jpeg", MimeFromFilename("a.jpeg"))
	require.Equal(t, "image/svg+xml", MimeFromFilename("logo.svg"))
	require.Equal(t, "image/png", MimeFromFilename("noext"))
}

func TestParseDesired(t *testing.T) {
	raw := []byte("hello icon")
	enc := base64.StdEncoding.EncodeToString(raw)
	got, err := ParseDesired([]Upload{
		{Filename: "a.png", Data: enc},
		{Filename: "b.svg", Data: "data:image/svg+xml;base64," + enc},
		{Filename: "a.png", Data: base64.StdEncoding.EncodeToString([]byte("newer"))},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "newer", string(got[0].Data))
	require.EqualValues(t, 5, got[0].Size)
	require.Equal(t, "image/svg+xml", got[1].MimeType)
	require.Equal(t, raw, got[1].Data)

	_, err = ParseDesired([]Upload{{Filename: "../evil.png", Data: enc}})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = ParseDesired([]Upload{{Filename: "a.png", Data: "!!!"}})
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestBuildPlan(t *testing.T) {
	current := []database.ResumeIcon{
		{Filename: "a.png", FileSize: 100},
		{Filename: "b.png", FileSize: 50},
		{Filename: "d.png", FileSize: 10},
	}
	plan := BuildPlan(current, []Desired{
		desired("a.png", payload(100, 1)),
		desired("c.png", payload(30, 3)),
		desired("d.png", payload(11, 4)),
	})

	require.Equal(t, []string{"a.png"}, filenames(plan.Keep))
	require.Len(t, plan.Upload, 2)
	require.Equal(t, "c.png", plan.Upload[0].Filename)
	require.Equal(t, "d.png", plan.Upload[1].Filename)
	require.Equal(t, []string{"b.png"}, filenames(plan.Delete))
	require.Contains(t, plan.Replaced, "d.png")
	require.False(t, plan.Empty())

	require.True(t, BuildPlan(current[:1], []Desired{desired("a.png", payload(100, 1))}).Empty())
}

func TestApply_ReconcilesAcrossSaves(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	rows := &fakeRows{rows: map[string][]database.ResumeIcon{}}
	r := NewReconciler(objects, rows, nil, nil, nil)

	first := BuildPlan(nil, []Desired{desired("a.png", payload(100, 1)), desired("b.png", payload(50, 2))})
	_, err := r.Apply(ctx, "alice", "r1", first)
	require.NoError(t, err)
	require.Len(t, objects.puts, 2)

	objects.puts = nil
	second := BuildPlan(rows.rows["r1"], []Desired{desired("a.png", payload(100, 1)), desired("c.png", payload(30, 3))})
	res, err := r.Apply(ctx, "alice", "r1", second)
	require.NoError(t, err)

	require.Equal(t, []string{"alice/r1/c.png"}, objects.puts)
	require.Equal(t, []string{"alice/r1/b.png"}, objects.deletes)
	require.Equal(t, []string{"a.png"}, res.Kept)
	require.Equal(t, []string{"a.png", "c.png"}, filenames(rows.rows["r1"]))
	require.NotContains(t, objects.objects, "alice/r1/b.png")
}

func TestApply_UploadFailureIsSkipped(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	objects.failPut["alice/r1/bad.png"] = true
	rows := &fakeRows{rows: map[string][]database.ResumeIcon{}}
	r := NewReconciler(objects, rows, nil, nil, nil)

	plan := BuildPlan(nil, []Desired{desired("ok.png", payload(3, 1)), desired("bad.png", payload(4, 2))})
	res, err := r.Apply(ctx, "alice", "r1", plan)
	require.NoError(t, err)
	require.Equal(t, []string{"bad.png"}, res.Failed)
	require.Equal(t, []string{"ok.png"}, filenames(rows.rows["r1"]))
}

func TestApply_FailedReplacementKeepsOldRow(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	objects.failPut["alice/r1/a.png"] = true
	rows := &fakeRows{rows: map[string][]database.ResumeIcon{}}
	r := NewReconciler(objects, rows, nil, nil, nil)

	old := database.ResumeIcon{ID: "old", Filename: "a.png", FileSize: 5, StorageKey: "alice/r1/a.png"}
	plan := BuildPlan([]database.ResumeIcon{old}, []Desired{desired("a.png", payload(6, 1))})
	_, err := r.Apply(ctx, "alice", "r1", plan)
	require.NoError(t, err)
	require.Len(t, rows.rows["r1"], 1)
	require.Equal(t, "old", rows.rows["r1"][0].ID)
}

func TestApply_ScanRejectionIsSkipped(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	rows := &fakeRows{rows: map[string][]database.ResumeIcon{}}
	r := NewReconciler(objects, rows, rejectScanner{name: []byte("virus")}, nil, nil)

	plan := BuildPlan(nil, []Desired{desired("x.png", []byte("virus")), desired("y.png", []byte("fine"))})
	res, err := r.Apply(ctx, "alice", "r1", plan)
	require.NoError(t, err)
	require.Equal(t, []string{"x.png"}, res.Failed)
	require.Equal(t, []string{"alice/r1/y.png"}, objects.puts)
}

func TestApply_FailedDeleteIsQueued(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	objects.failDelete = true
	rows := &fakeRows{rows: map[string][]database.ResumeIcon{}}
	purge := &fakePurge{}
	r := NewReconciler(objects, rows, nil, purge, nil)

	plan := BuildPlan([]database.ResumeIcon{{Filename: "gone.png", StorageKey: "alice/r1/gone.png"}}, nil)
	_, err := r.Apply(ctx, "alice", "r1", plan)
	require.NoError(t, err)
	require.Equal(t, []string{"alice/r1/gone.png"}, purge.keys)
	require.Empty(t, rows.rows["r1"])
}

func TestApply_RowFailureLeavesOldObjects(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	rows := &fakeRows{rows: map[string][]database.ResumeIcon{}, err: errors.New("syntax error")}
	r := NewReconciler(objects, rows, nil, nil, nil)

	plan := BuildPlan([]database.ResumeIcon{{Filename: "old.png", StorageKey: "alice/r1/old.png"}}, nil)
	_, err := r.Apply(ctx, "alice", "r1", plan)
	require.Error(t, err)
	require.Empty(t, objects.deletes)
}
