package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/freightdocflow/internal/models"
	"google.golang.org/api/iterator"
)

// KnowledgeBase serves few-shot examples from a top-level Firestore collection.
type KnowledgeBase struct {
	client     *firestore.Client
	collection string
}

func NewKnowledgeBase(client *firestore.Client, collection string) *KnowledgeBase {
	return &KnowledgeBase{client: client, collection: collection}
}

// GetFewShotExamples returns the newest examples for the carrier and tops up
// with other carriers' examples of the same type.
func (k *KnowledgeBase) GetFewShotExamples(ctx context.Context, docType models.DocumentType, carrier string, count int) ([]models.FewShotExample, error) {
	examples := []models.FewShotExample{}
	if count <= 0 {
		return examples, nil
	}
	base := k.client.Collection(k.collection).Where("documentType", "==", string(docType))

	if carrier != "" {
		byCarrier, err := k.fetch(ctx, base.Where("carrier", "==", carrier), count, nil)
		if err != nil {
			return nil, err
		}
		examples = append(examples, byCarrier...)
	}
	if len(examples) < count {
		seen := make(map[string]bool, len(examples))
		for _, ex := range examples {
			seen[ex.ID] = true
		}
		// One extra page covers the ids already taken above.
		rest, err := k.fetch(ctx, base, count+len(examples), seen)
		if err != nil {
			return nil, err
		}
		for _, ex := range rest {
			if len(examples) == count {
				break
			}
			examples = append(examples, ex)
		}
	}
	return examples, nil
}

func (k *KnowledgeBase) fetch(ctx context.Context, q firestore.Query, limit int, skip map[string]bool) ([]models.FewShotExample, error) {
	iter := q.OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var out []models.FewShotExample
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query few-shot examples: %w", err)
		}
		var ex models.FewShotExample
		if err := snap.DataTo(&ex); err != nil {
			return nil, fmt.Errorf("failed to decode few-shot example %s: %w", snap.Ref.ID, err)
		}
		if ex.ID == "" {
			ex.ID = snap.Ref.ID
		}
		if skip[ex.ID] {
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

func (k *KnowledgeBase) SaveExample(ctx context.Context, example models.FewShotExample) error {
	if example.ID == "" {
		return fmt.Errorf("few-shot example id must be set")
	}
	if _, err := k.client.Collection(k.collection).Doc(example.ID).Set(ctx, example); err != nil {
		return fmt.Errorf("failed to save few-shot example %s: %w", example.ID, err)
	}
	return nil
}
