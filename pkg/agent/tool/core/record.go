package core

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/shiori-lab/shiori/pkg/agent/tool"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/service/embedding"
	"github.com/shiori-lab/shiori/pkg/service/retrieval"
)

// searchRecordsTool searches the owner's records using vector similarity
type searchRecordsTool struct {
	engine *retrieval.Engine
	embed  embedding.Service
	owner  string
}

func (t *searchRecordsTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "search_records",
		Description: "Search the user's saved records using semantic (vector) similarity for the given query. Returns the most relevant records first.",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "Search query text",
				Required:    true,
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: fmt.Sprintf("Maximum number of results to return (default: %d, max: %d)", retrieval.DefaultLimit, retrieval.MaxLimit),
				Required:    false,
			},
		},
	}
}

func (t *searchRecordsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	tool.Update(ctx, fmt.Sprintf("Searching records: %s", query))

	limit := retrieval.DefaultLimit
	if v, ok := extractInt64(args, "limit"); ok && v > 0 {
		limit = int(v)
	}

	queryEmbedding, err := t.embed.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	results, err := t.engine.Search(ctx, t.owner, queryEmbedding, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search records", goerr.V("owner", t.owner))
	}

	return map[string]any{
		"records": recordItems(results),
		"count":   len(results),
	}, nil
}

// recentRecordsTool lists the owner's most recent records
type recentRecordsTool struct {
	repo  interfaces.Repository
	owner string
}

func (t *recentRecordsTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "get_recent_records",
		Description: "List the user's most recently saved records, newest first. Use this when the question is about something saved recently rather than a specific topic.",
		Parameters: map[string]*gollem.Parameter{
			"limit": {
				Type:        gollem.TypeInteger,
				Description: fmt.Sprintf("Maximum number of records to return (default: %d, max: %d)", retrieval.DefaultLimit, retrieval.MaxLimit),
				Required:    false,
			},
		},
	}
}

func (t *recentRecordsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	tool.Update(ctx, "Listing recent records...")

	limit := retrieval.DefaultLimit
	if v, ok := extractInt64(args, "limit"); ok && v > 0 {
		limit = int(v)
	}
	limit = retrieval.ClampLimit(limit)

	records, err := t.repo.Record().ListByOwner(ctx, t.owner, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent records", goerr.V("owner", t.owner))
	}

	return map[string]any{
		"records": recordItems(records),
		"count":   len(records),
	}, nil
}

func recordItems(records []*model.Record) []map[string]any {
	items := make([]map[string]any, len(records))
	for i, r := range records {
		items[i] = map[string]any{
			"id":         string(r.ID),
			"kind":       r.Kind.String(),
			"text":       r.RawText,
			"created_at": r.CreatedAt.String(),
		}
		if len(r.SourceRefs) > 0 {
			items[i]["source_refs"] = r.SourceRefs
		}
	}
	return items
}
