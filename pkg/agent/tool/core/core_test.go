package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/shiori-lab/shiori/pkg/agent/tool"
	"github.com/shiori-lab/shiori/pkg/agent/tool/core"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"github.com/shiori-lab/shiori/pkg/repository/memory"
)

const testOwner = "U012345"

// newCtxWithUpdateCapture returns a context that captures all update messages
// and a pointer to the slice where they are appended.
func newCtxWithUpdateCapture() (context.Context, *[]string) {
	var messages []string
	ctx := tool.WithUpdate(context.Background(), func(_ context.Context, msg string) {
		messages = append(messages, msg)
	})
	return ctx, &messages
}

// stubEmbedder returns a fixed vector regardless of input
type stubEmbedder struct {
	vector []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, nil
}

func fixedVector(seed float32) []float32 {
	emb := make([]float32, model.EmbeddingDimension)
	for i := range emb {
		emb[i] = seed
	}
	emb[0] = 1
	return emb
}

func findTool(t *testing.T, tools []gollem.Tool, name string) gollem.Tool {
	t.Helper()
	for _, tl := range tools {
		if tl.Spec().Name == name {
			return tl
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestSearchRecordsTool(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	_, err := repo.Record().Create(ctx, &model.Record{
		Owner: testOwner, Kind: types.RecordKindNote,
		RawText: "The wifi password rotates monthly", Embedding: fixedVector(0.9),
	})
	gt.NoError(t, err).Required()

	_, err = repo.Record().Create(ctx, &model.Record{
		Owner: testOwner, Kind: types.RecordKindNote,
		RawText: "Lunch menu for Friday", Embedding: fixedVector(0),
	})
	gt.NoError(t, err).Required()

	tools := core.New(repo, testOwner, &stubEmbedder{vector: fixedVector(1.0)})
	search := findTool(t, tools, "search_records")

	t.Run("returns records ranked by similarity", func(t *testing.T) {
		updateCtx, messages := newCtxWithUpdateCapture()

		result, err := search.Run(updateCtx, map[string]any{"query": "wifi password"})
		gt.NoError(t, err).Required()

		gt.Value(t, result["count"]).Equal(2)
		records, ok := result["records"].([]map[string]any)
		gt.Bool(t, ok).True()
		gt.Value(t, records[0]["text"]).Equal("The wifi password rotates monthly")
		gt.Array(t, *messages).Length(1)
	})

	t.Run("respects limit", func(t *testing.T) {
		result, err := search.Run(context.Background(), map[string]any{
			"query": "anything",
			"limit": float64(1),
		})
		gt.NoError(t, err).Required()
		gt.Value(t, result["count"]).Equal(1)
	})

	t.Run("requires query", func(t *testing.T) {
		_, err := search.Run(context.Background(), map[string]any{})
		gt.Value(t, err).NotNil()
	})
}

func TestRecentRecordsTool(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	_, err := repo.Record().Create(ctx, &model.Record{
		Owner: testOwner, Kind: types.RecordKindNote, RawText: "older note",
	})
	gt.NoError(t, err).Required()
	time.Sleep(10 * time.Millisecond)

	_, err = repo.Record().Create(ctx, &model.Record{
		Owner: testOwner, Kind: types.RecordKindNote, RawText: "newer note",
	})
	gt.NoError(t, err).Required()

	// another owner's record must not leak
	_, err = repo.Record().Create(ctx, &model.Record{
		Owner: "someone-else", Kind: types.RecordKindNote, RawText: "private",
	})
	gt.NoError(t, err).Required()

	tools := core.New(repo, testOwner, &stubEmbedder{vector: fixedVector(1.0)})
	recent := findTool(t, tools, "get_recent_records")

	t.Run("returns newest first", func(t *testing.T) {
		result, err := recent.Run(context.Background(), map[string]any{})
		gt.NoError(t, err).Required()

		gt.Value(t, result["count"]).Equal(2)
		records, ok := result["records"].([]map[string]any)
		gt.Bool(t, ok).True()
		gt.Value(t, records[0]["text"]).Equal("newer note")
		gt.Value(t, records[1]["text"]).Equal("older note")
	})

	t.Run("respects limit", func(t *testing.T) {
		result, err := recent.Run(context.Background(), map[string]any{"limit": float64(1)})
		gt.NoError(t, err).Required()
		gt.Value(t, result["count"]).Equal(1)
	})
}
