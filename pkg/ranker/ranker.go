// Package ranker turns raw class probabilities into a labeled, sorted list.
package ranker

import (
	"fmt"
	"sort"

	"github.com/menta2k/fruit-ripeness/pkg/types"
)

// DefaultTopK is the number of predictions kept when the caller asks for none
const DefaultTopK = 5

// Rank labels each class score, sorts descending and keeps the top k.
// A single score is read as a sigmoid and expanded to [1-p, p].
func Rank(scores []float32, labels []string, topK int) []types.PredictionItem {
	if len(scores) == 0 {
		return []types.PredictionItem{}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = float64(s)
	}
	if len(probs) == 1 {
		p := probs[0]
		probs = []float64{1.0 - p, p}
	}

	items := make([]types.PredictionItem, len(probs))
	for i, p := range probs {
		items[i] = types.PredictionItem{Label: Label(labels, i), Confidence: p}
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Confidence > items[b].Confidence
	})

	if len(items) > topK {
		items = items[:topK]
	}
	return items
}

// Label returns the positional label, or class_<index> when labels run short
func Label(labels []string, index int) string {
	if index < len(labels) {
		return labels[index]
	}
	return fmt.Sprintf("class_%d", index)
}
