package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vectorstore"
)

type fixture struct {
	storage storage.Storage
	blobs   blob.Store
	vectors *vectorstore.MemoryStore
	service *Service
}

func newFixture(t *testing.T, embedder embedding.Embedder) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.NewSQLiteStorage(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	blobs, err := blob.NewFSStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	vectors := vectorstore.NewMemoryStore()
	svc := NewService(st, blobs, embedder, vectors, chunker.Options{Size: 9, Overlap: 2})
	return &fixture{storage: st, blobs: blobs, vectors: vectors, service: svc}
}

func seedFolder(t *testing.T, f *fixture, visibility models.Visibility) *models.Folder {
	t.Helper()
	folder := &models.Folder{ID: "folder1", Name: "notes", OwnerID: "alice", Visibility: visibility}
	if err := f.storage.CreateFolder(context.Background(), folder); err != nil {
		t.Fatal(err)
	}
	return folder
}

func TestService_UploadAndIngest(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	ctx := context.Background()
	folder := seedFolder(t, f, models.VisibilityPrivate)

	file, err := f.service.Upload(ctx, "alice", folder.ID, "a.txt", []byte("Line one\nLine two\nLine three"))
	if err != nil {
		t.Fatal(err)
	}
	if file.Status != models.FileStatusUploading {
		t.Errorf("status after upload: %s", file.Status)
	}

	if err := f.service.IngestFile(ctx, file.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	got, _ := f.storage.GetFile(ctx, file.ID)
	if got.Status != models.FileStatusReady {
		t.Errorf("status after ingest: %s", got.Status)
	}
	count, _ := f.storage.CountChunks(ctx)
	if count == 0 {
		t.Error("expected persisted chunks")
	}
	if f.vectors.Size() != int(count) {
		t.Errorf("vector count %d != chunk count %d", f.vectors.Size(), count)
	}
}

func TestService_IngestForbiddenForNonOwner(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	ctx := context.Background()
	folder := seedFolder(t, f, models.VisibilityPrivate)
	file, err := f.service.Upload(ctx, "alice", folder.ID, "a.txt", []byte("content"))
	if err != nil {
		t.Fatal(err)
	}

	err = f.service.IngestFile(ctx, file.ID, "mallory")
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	// Status untouched: the pipeline never started.
	got, _ := f.storage.GetFile(ctx, file.ID)
	if got.Status != models.FileStatusUploading {
		t.Errorf("status: %s", got.Status)
	}
}

func TestService_UploadIntoUnownedFolder(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	seedFolder(t, f, models.VisibilityPublic)
	_, err := f.service.Upload(context.Background(), "bob", "folder1", "b.txt", []byte("x"))
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestService_IngestMissingFile(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	err := f.service.IngestFile(context.Background(), "nope", "alice")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ReingestReplacesChunks(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	ctx := context.Background()
	folder := seedFolder(t, f, models.VisibilityPrivate)
	file, err := f.service.Upload(ctx, "alice", folder.ID, "a.txt", []byte("Line one\nLine two\nLine three"))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.service.IngestFile(ctx, file.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	firstCount, _ := f.storage.CountChunks(ctx)

	// Second ingest of the same bytes must end with the same totals, not
	// accumulate a second generation.
	if err := f.service.IngestFile(ctx, file.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	secondCount, _ := f.storage.CountChunks(ctx)
	if firstCount != secondCount {
		t.Errorf("chunk count changed across re-ingest: %d -> %d", firstCount, secondCount)
	}
	if f.vectors.Size() != int(secondCount) {
		t.Errorf("vector count %d != chunk count %d", f.vectors.Size(), secondCount)
	}
}

type countMismatchEmbedder struct{}

func (countMismatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1, 0}}, nil
}

func (countMismatchEmbedder) Dimensions() int { return 2 }

func TestService_CountMismatchFailsFile(t *testing.T) {
	f := newFixture(t, countMismatchEmbedder{})
	ctx := context.Background()
	folder := seedFolder(t, f, models.VisibilityPrivate)
	file, err := f.service.Upload(ctx, "alice", folder.ID, "a.txt", []byte("Line one\nLine two\nLine three"))
	if err != nil {
		t.Fatal(err)
	}

	err = f.service.IngestFile(ctx, file.ID, "alice")
	if !errors.Is(err, apperr.ErrCountMismatch) {
		t.Fatalf("expected ErrCountMismatch, got %v", err)
	}
	got, _ := f.storage.GetFile(ctx, file.ID)
	if got.Status != models.FileStatusFailed {
		t.Errorf("status: %s", got.Status)
	}
	// Nothing was written: the mismatch is detected before replacement.
	count, _ := f.storage.CountChunks(ctx)
	if count != 0 {
		t.Errorf("expected 0 chunks, got %d", count)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func (failingEmbedder) Dimensions() int { return 2 }

func TestService_EmbedFailureKeepsPreviousGeneration(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	ctx := context.Background()
	folder := seedFolder(t, f, models.VisibilityPrivate)
	file, err := f.service.Upload(ctx, "alice", folder.ID, "a.txt", []byte("Line one\nLine two\nLine three"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.service.IngestFile(ctx, file.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	before, _ := f.storage.CountChunks(ctx)

	f.service.embedder = failingEmbedder{}
	if err := f.service.IngestFile(ctx, file.ID, "alice"); err == nil {
		t.Fatal("expected ingest failure")
	}
	after, _ := f.storage.CountChunks(ctx)
	if after != before {
		t.Errorf("previous chunks must survive an embed failure: %d -> %d", before, after)
	}
	got, _ := f.storage.GetFile(ctx, file.ID)
	if got.Status != models.FileStatusFailed {
		t.Errorf("status: %s", got.Status)
	}
}

func TestService_EmptyFileFailsIngestion(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	ctx := context.Background()
	folder := seedFolder(t, f, models.VisibilityPrivate)
	file, err := f.service.Upload(ctx, "alice", folder.ID, "empty.txt", []byte(""))
	if err != nil {
		t.Fatal(err)
	}
	err = f.service.IngestFile(ctx, file.ID, "alice")
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for an empty source, got %v", err)
	}
	got, _ := f.storage.GetFile(ctx, file.ID)
	if got.Status != models.FileStatusFailed {
		t.Errorf("status: %s", got.Status)
	}
	count, _ := f.storage.CountChunks(ctx)
	if count != 0 {
		t.Errorf("empty file must produce no chunks, got %d", count)
	}
}

// failingUpsertStore accepts deletes but refuses every upsert.
type failingUpsertStore struct {
	*vectorstore.MemoryStore
}

func (s *failingUpsertStore) Upsert(ctx context.Context, id string, vector []float32, meta models.VectorMetadata) error {
	return errors.New("index unavailable")
}

func TestService_UpsertFailurePersistsRecordsFirst(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	ctx := context.Background()
	folder := seedFolder(t, f, models.VisibilityPrivate)
	file, err := f.service.Upload(ctx, "alice", folder.ID, "a.txt", []byte("Line one\nLine two\nLine three"))
	if err != nil {
		t.Fatal(err)
	}
	f.service.vectors = &failingUpsertStore{f.vectors}

	if err := f.service.IngestFile(ctx, file.ID, "alice"); err == nil {
		t.Fatal("expected ingest failure")
	}
	got, _ := f.storage.GetFile(ctx, file.ID)
	if got.Status != models.FileStatusFailed {
		t.Errorf("status: %s", got.Status)
	}
	// Chunk records land before any vector does, so an index outage leaves
	// record-only chunks and never vectors for unwritten records.
	count, _ := f.storage.CountChunks(ctx)
	if count == 0 {
		t.Error("chunk records must be persisted before vector upserts")
	}
	if f.vectors.Size() != 0 {
		t.Errorf("no vectors should be written, got %d", f.vectors.Size())
	}
}

func TestService_DeleteFile(t *testing.T) {
	f := newFixture(t, embedding.NewMockEmbedder(4))
	ctx := context.Background()
	folder := seedFolder(t, f, models.VisibilityPrivate)
	file, err := f.service.Upload(ctx, "alice", folder.ID, "a.txt", []byte("Line one\nLine two\nLine three"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.service.IngestFile(ctx, file.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	if err := f.service.DeleteFile(ctx, file.ID, "mallory"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := f.service.DeleteFile(ctx, file.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.storage.GetFile(ctx, file.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if f.vectors.Size() != 0 {
		t.Errorf("expected vectors removed, size=%d", f.vectors.Size())
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"a.txt":          "a.txt",
		"dir/a.txt":      "a.txt",
		"..\\evil.txt":   "evil.txt",
		"  spaced.txt  ": "spaced.txt",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
