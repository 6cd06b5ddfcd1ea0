// Package integration exercises the ingestion and chat pipeline against real
// storage (SQLite, filesystem blobs, in-memory vector index).
package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/chat"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vectorstore"
)

func TestIntegration_UploadIngestAsk(t *testing.T) {
	dir := t.TempDir()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	blobs, err := blob.NewFSStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}

	embedder := embedding.NewMockEmbedder(4)
	vectors := vectorstore.NewMemoryStore()
	model := &llm.MockModel{
		Content: `{"answer":"The notes list three lines.","citations":[{"folder":"docs","file":"notes.txt","lines":[1,3]}]}`,
	}

	ingestSvc := ingest.NewService(store, blobs, embedder, vectors, chunker.Options{Size: 200, Overlap: 20})
	chatSvc := chat.NewService(store, embedder, vectors, model, 8)
	ctx := context.Background()

	folder := &models.Folder{ID: "f1", Name: "docs", OwnerID: "alice", Visibility: models.VisibilityPrivate}
	if err := store.CreateFolder(ctx, folder); err != nil {
		t.Fatal(err)
	}

	file, err := ingestSvc.Upload(ctx, "alice", folder.ID, "notes.txt", []byte("Line one\nLine two\nLine three"))
	if err != nil {
		t.Fatal(err)
	}
	if err := ingestSvc.IngestFile(ctx, file.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.FileStatusReady {
		t.Fatalf("file status = %s, want %s", got.Status, models.FileStatusReady)
	}
	if vectors.Size() < 1 {
		t.Fatal("expected at least one vector after ingestion")
	}

	resp, err := chatSvc.Ask(ctx, "alice", "what do the notes say?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "The notes list three lines." {
		t.Errorf("answer: %q", resp.Answer)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %+v", resp.Citations)
	}
	c := resp.Citations[0]
	if c.Lines[0] < 1 || c.Lines[1] > 3 {
		t.Errorf("citation lines %v outside [1,3]", c.Lines)
	}
	if len(resp.Sources) == 0 {
		t.Error("expected retrieval sources")
	}

	// Deleting the file empties the index again.
	if err := ingestSvc.DeleteFile(ctx, file.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if vectors.Size() != 0 {
		t.Errorf("expected empty index after delete, got %d vectors", vectors.Size())
	}
}
