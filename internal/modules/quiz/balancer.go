package quiz

import (
	"math/rand"
	"sync"
	"time"

	"github.com/yungbote/newsquiz-backend/internal/domain"
)

// AnswerBalancer spreads correct-answer positions evenly over A..D. Safe for
// concurrent use.
type AnswerBalancer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAnswerBalancer uses rng for every shuffle; nil seeds from the clock.
func NewAnswerBalancer(rng *rand.Rand) *AnswerBalancer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &AnswerBalancer{rng: rng}
}

// Balance returns a copy of items where eligible multiple-choice items have their
// options reordered so each label is correct within one of every other label.
// Other items are returned unchanged. Option texts are never modified.
func (b *AnswerBalancer) Balance(items []domain.QuizItem) []domain.QuizItem {
	out := make([]domain.QuizItem, len(items))
	copy(out, items)

	var eligible []int
	for i, it := range out {
		if balanceable(it) {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return out
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	labels := b.labelSequence(len(eligible))
	for n, idx := range eligible {
		out[idx] = b.place(out[idx], labels[n])
	}
	return out
}

func balanceable(it domain.QuizItem) bool {
	if it.Kind != domain.ContentMultipleChoice || len(it.Options) != len(domain.OptionLabels) {
		return false
	}
	_, ok := it.CorrectOptionIndex()
	return ok
}

// labelSequence returns exactly n label slots: full A..D cycles plus a random
// distinct remainder, shuffled.
func (b *AnswerBalancer) labelSequence(n int) []int {
	k := len(domain.OptionLabels)
	seq := make([]int, 0, n)
	for c := 0; c < n/k; c++ {
		for j := 0; j < k; j++ {
			seq = append(seq, j)
		}
	}
	if rem := n % k; rem > 0 {
		seq = append(seq, b.rng.Perm(k)[:rem]...)
	}
	b.rng.Shuffle(len(seq), func(i, j int) { seq[i], seq[j] = seq[j], seq[i] })
	return seq
}

func (b *AnswerBalancer) place(it domain.QuizItem, target int) domain.QuizItem {
	correct, _ := it.CorrectOptionIndex()
	others := make([]int, 0, len(it.Options)-1)
	for i := range it.Options {
		if i != correct {
			others = append(others, i)
		}
	}
	b.rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })

	opts := make([]domain.Option, len(it.Options))
	next := 0
	for slot := range opts {
		src := correct
		if slot != target {
			src = others[next]
			next++
		}
		opts[slot] = domain.Option{Label: domain.OptionLabels[slot], Text: it.Options[src].Text}
	}
	it.Options = opts
	it.Answer.Label = domain.OptionLabels[target]
	return it
}
