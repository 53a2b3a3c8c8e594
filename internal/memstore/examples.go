package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

// KnowledgeBase keeps few-shot examples in insertion order.
type KnowledgeBase struct {
	mu       sync.RWMutex
	examples []models.FewShotExample
}

func NewKnowledgeBase(seed ...models.FewShotExample) *KnowledgeBase {
	return &KnowledgeBase{examples: append([]models.FewShotExample(nil), seed...)}
}

// GetFewShotExamples prefers examples of the same carrier, newest first, and
// tops up with other carriers' examples of the same type.
func (k *KnowledgeBase) GetFewShotExamples(ctx context.Context, docType models.DocumentType, carrier string, count int) ([]models.FewShotExample, error) {
	if count <= 0 {
		return []models.FewShotExample{}, nil
	}
	k.mu.RLock()
	var same, other []models.FewShotExample
	for _, ex := range k.examples {
		if ex.DocumentType != docType {
			continue
		}
		if strings.EqualFold(ex.Carrier, carrier) {
			same = append(same, ex)
		} else {
			other = append(other, ex)
		}
	}
	k.mu.RUnlock()

	newestFirst := func(list []models.FewShotExample) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	}
	newestFirst(same)
	newestFirst(other)

	out := append(same, other...)
	if len(out) > count {
		out = out[:count]
	}
	if out == nil {
		out = []models.FewShotExample{}
	}
	return out, nil
}

func (k *KnowledgeBase) SaveExample(ctx context.Context, example models.FewShotExample) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.examples = append(k.examples, example)
	return nil
}

// Len reports how many examples are stored.
func (k *KnowledgeBase) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.examples)
}
