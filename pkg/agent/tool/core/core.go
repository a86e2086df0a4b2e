package core

import (
	"github.com/m-mizutani/gollem"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
	"github.com/shiori-lab/shiori/pkg/service/embedding"
	"github.com/shiori-lab/shiori/pkg/service/retrieval"
)

// New builds the core tools the answering agent may call. All tools are
// scoped to the owner whose question is being answered.
func New(repo interfaces.Repository, owner string, embed embedding.Service) []gollem.Tool {
	engine := retrieval.New(repo)

	return []gollem.Tool{
		&searchRecordsTool{engine: engine, embed: embed, owner: owner},
		&recentRecordsTool{repo: repo, owner: owner},
	}
}

// extractInt64 reads an integer argument that JSON decoding may have turned
// into a float64
func extractInt64(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
