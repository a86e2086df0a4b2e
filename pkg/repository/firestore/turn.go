package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/domain/types"
	"google.golang.org/api/iterator"
)

type turnDoc struct {
	ID            model.TurnID `firestore:"ID"`
	Owner         string       `firestore:"Owner"`
	Direction     string       `firestore:"Direction"`
	Role          string       `firestore:"Role"`
	Content       string       `firestore:"Content"`
	CorrelationID string       `firestore:"CorrelationID"`
	CreatedAt     time.Time    `firestore:"CreatedAt"`
}

func toTurnDoc(t *model.ConversationTurn) *turnDoc {
	return &turnDoc{
		ID:            t.ID,
		Owner:         t.Owner,
		Direction:     t.Direction.String(),
		Role:          t.Role.String(),
		Content:       t.Content,
		CorrelationID: t.CorrelationID,
		CreatedAt:     t.CreatedAt,
	}
}

func fromTurnDoc(d *turnDoc) *model.ConversationTurn {
	return &model.ConversationTurn{
		ID:            d.ID,
		Owner:         d.Owner,
		Direction:     types.Direction(d.Direction),
		Role:          types.Role(d.Role),
		Content:       d.Content,
		CorrelationID: d.CorrelationID,
		CreatedAt:     d.CreatedAt,
	}
}

type turnRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newTurnRepository(client *firestore.Client) *turnRepository {
	return &turnRepository{client: client}
}

func (r *turnRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "turns")
}

func (r *turnRepository) Append(ctx context.Context, turn *model.ConversationTurn) (*model.ConversationTurn, error) {
	if err := turn.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation turn")
	}

	created := *turn
	if created.ID == "" {
		created.ID = model.NewTurnID()
	}
	created.CreatedAt = time.Now().UTC()

	docRef := r.collection().Doc(string(created.ID))
	if _, err := docRef.Set(ctx, toTurnDoc(&created)); err != nil {
		return nil, goerr.Wrap(err, "failed to append conversation turn")
	}

	return &created, nil
}

func (r *turnRepository) ListRecent(ctx context.Context, owner string, limit int) ([]*model.ConversationTurn, error) {
	query := r.collection().
		Where("Owner", "==", owner).
		OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	turns := make([]*model.ConversationTurn, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate turns", goerr.V("owner", owner))
		}

		var d turnDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal turn")
		}
		turns = append(turns, fromTurnDoc(&d))
	}

	return turns, nil
}
