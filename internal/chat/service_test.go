package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vectorstore"
)

type fixture struct {
	storage storage.Storage
	vectors *vectorstore.MemoryStore
	model   *llm.MockModel
	service *Service
}

func newFixture(t *testing.T, topK int) *fixture {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	vectors := vectorstore.NewMemoryStore()
	model := &llm.MockModel{Content: `{"answer":"stub","citations":[]}`}
	svc := NewService(st, embedding.NewMockEmbedder(4), vectors, model, topK)
	return &fixture{storage: st, vectors: vectors, model: model, service: svc}
}

// seedChunk persists a chunk with its folder/file rows and upserts a vector
// for it so retrieval can find it.
func seedChunk(t *testing.T, f *fixture, chunkID, owner string, visibility models.Visibility, vector []float32) {
	t.Helper()
	ctx := context.Background()
	folderID := "folder-" + chunkID
	fileID := "file-" + chunkID
	if err := f.storage.CreateFolder(ctx, &models.Folder{ID: folderID, Name: "notes", OwnerID: owner, Visibility: visibility}); err != nil {
		t.Fatal(err)
	}
	if err := f.storage.CreateFile(ctx, &models.File{
		ID: fileID, FolderID: folderID, OwnerID: owner, Name: "a.txt",
		BlobKey: "files/" + fileID, Visibility: visibility, Status: models.FileStatusReady,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.storage.BatchCreateChunks(ctx, []*models.ChunkRecord{{
		ID: chunkID, FileID: fileID, FolderID: folderID, OwnerID: owner,
		Visibility: visibility, ChunkIndex: 0, StartLine: 1, EndLine: 2, Content: "Line one\n",
	}}); err != nil {
		t.Fatal(err)
	}
	meta := models.VectorMetadata{
		ChunkID: chunkID, FileID: fileID, FolderID: folderID,
		FolderName: "notes", FileName: "a.txt", StartLine: 1, EndLine: 2,
		Visibility: visibility, OwnerID: owner,
	}
	if err := f.vectors.Upsert(ctx, chunkID, vector, meta); err != nil {
		t.Fatal(err)
	}
}

func TestAsk_GroundedAnswerWithValidCitation(t *testing.T) {
	f := newFixture(t, 8)
	seedChunk(t, f, "c1", "alice", models.VisibilityPrivate, []float32{1, 0, 0, 0})
	f.model.Content = `{"answer":"Line one covers it.","citations":[{"folder":"notes","file":"a.txt","lines":[1,2]}]}`

	resp, err := f.service.Ask(context.Background(), "alice", "what is in the notes?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Line one covers it." {
		t.Errorf("answer: %q", resp.Answer)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].Lines != [2]int{1, 2} {
		t.Errorf("citations: %+v", resp.Citations)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ChunkID != "c1" {
		t.Errorf("sources: %+v", resp.Sources)
	}
	if resp.ChatID == "" {
		t.Error("chat id should be set")
	}

	chats, _ := f.service.History(context.Background(), "alice", 10)
	if len(chats) != 1 {
		t.Fatalf("expected 1 persisted chat, got %d", len(chats))
	}
}

func TestAsk_InventedCitationsDropped(t *testing.T) {
	f := newFixture(t, 8)
	seedChunk(t, f, "c1", "alice", models.VisibilityPrivate, []float32{1, 0, 0, 0})
	f.model.Content = `{"answer":"made up","citations":[
		{"folder":"notes","file":"a.txt","lines":[1,99]},
		{"folder":"other","file":"a.txt","lines":[1,2]}
	]}`

	resp, err := f.service.Ask(context.Background(), "alice", "question")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("citations not matching an offered context must be dropped, got %+v", resp.Citations)
	}
}

func TestAsk_NoContextsShortCircuits(t *testing.T) {
	f := newFixture(t, 8)
	resp, err := f.service.Ask(context.Background(), "alice", "anything indexed?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != noMatchAnswer {
		t.Errorf("answer: %q", resp.Answer)
	}
	if len(f.model.Calls) != 0 {
		t.Error("model must not be called without contexts")
	}
	if resp.Citations == nil || resp.Sources == nil {
		t.Error("citations and sources must be empty, not null")
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources: %+v", resp.Sources)
	}
}

func TestAsk_MergeKeepsBestScore(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()
	// The same chunk visible from both namespaces with different scores: one
	// public copy and a higher-scoring private copy under the same chunk id.
	seedChunk(t, f, "c1", "alice", models.VisibilityPublic, []float32{0.4, 0, 0, 0})
	meta := models.VectorMetadata{
		ChunkID: "c1", FileID: "file-c1", FolderID: "folder-c1",
		FolderName: "notes", FileName: "a.txt", StartLine: 1, EndLine: 2,
		Visibility: models.VisibilityPrivate, OwnerID: "alice",
	}
	if err := f.vectors.Upsert(ctx, "c1-private", []float32{0.9, 0, 0, 0}, meta); err != nil {
		t.Fatal(err)
	}

	mockVec, _ := embedding.NewMockEmbedder(4).Embed(ctx, []string{"q"})
	public, _ := f.vectors.Query(ctx, vectorstore.NamespacePublic, mockVec[0], 8)
	private, _ := f.vectors.Query(ctx, vectorstore.OwnerNamespace("alice"), mockVec[0], 8)
	if len(public) != 1 || len(private) != 1 {
		t.Fatalf("seed expectations: public=%d private=%d", len(public), len(private))
	}

	resp, err := f.service.Ask(ctx, "alice", "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("duplicate chunk ids must merge to one source, got %d", len(resp.Sources))
	}
}

func TestAsk_FreeformSkipsRetrieval(t *testing.T) {
	f := newFixture(t, 8)
	f.model.Content = `{"answer":"hello there","citations":[{"folder":"x","file":"y","lines":[1,1]}]}`

	resp, err := f.service.Ask(context.Background(), "alice", "/chat say hello")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "hello there" {
		t.Errorf("answer: %q", resp.Answer)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("freeform answers carry no citations, got %+v", resp.Citations)
	}
	if len(f.model.Calls) != 1 {
		t.Fatalf("expected one model call, got %d", len(f.model.Calls))
	}
	if strings.Contains(f.model.Calls[0][1].Content, "excerpt") {
		t.Error("freeform prompt must not include retrieval context")
	}
}

func TestAsk_ModelFailureDegradesToApology(t *testing.T) {
	f := newFixture(t, 8)
	seedChunk(t, f, "c1", "alice", models.VisibilityPrivate, []float32{1, 0, 0, 0})
	f.model.Err = errors.New("model down")

	resp, err := f.service.Ask(context.Background(), "alice", "question")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != apologyAnswer {
		t.Errorf("answer: %q", resp.Answer)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("citations: %+v", resp.Citations)
	}
}

func TestAsk_EmbedFailureIsAnError(t *testing.T) {
	f := newFixture(t, 8)
	f.service.embedder = failingEmbedder{}
	if _, err := f.service.Ask(context.Background(), "alice", "question"); err == nil {
		t.Error("embedding failure must fail the request")
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func (failingEmbedder) Dimensions() int { return 4 }

func TestParseResult_Ladder(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"direct json", `{"answer":"direct","citations":[]}`, "direct"},
		{"embedded json", "Sure! Here you go:\n```json\n{\"answer\":\"embedded\",\"citations\":[]}\n```", "embedded"},
		{"raw text", "just plain prose", "just plain prose"},
		{"empty", "   ", apologyAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseResult(tc.raw)
			if got.Answer != tc.want {
				t.Errorf("answer: got %q, want %q", got.Answer, tc.want)
			}
			if got.Citations == nil {
				t.Error("citations must never be nil")
			}
		})
	}
}

func TestExtractJSONObject_BracesInStrings(t *testing.T) {
	raw := `prefix {"answer":"uses { and } inside","citations":[]} suffix`
	got := extractJSONObject(raw)
	if got != `{"answer":"uses { and } inside","citations":[]}` {
		t.Errorf("got %q", got)
	}
}
