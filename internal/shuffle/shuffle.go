// Package shuffle derives deterministic per-user permutations of quiz
// questions and option slots. Every function is pure: the same ids always
// produce the same layout, so a reconnecting client sees an identical quiz
// without the shuffled order ever being persisted.
package shuffle

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"strconv"
	"strings"

	"quiz-session-service/internal/domain"
)

// Seed reduces a tuple of stable identifiers to a 64-bit PRNG seed. The ids
// are hashed rather than summed so adjacent id pairs do not produce
// correlated seeds.
func Seed(ids ...int64) int64 {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "_")))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Questions returns a copy of qs in the order produced by a Fisher-Yates
// shuffle seeded with seed. The input slice is never mutated.
func Questions(qs []domain.Question, seed int64) []domain.Question {
	out := make([]domain.Question, len(qs))
	copy(out, qs)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// OptionMap records how option slots were permuted for one question.
// Forward maps a canonical letter to the slot the user sees it in; Reverse
// maps a submitted presentation-space letter back to canonical.
type OptionMap struct {
	Forward map[domain.Letter]domain.Letter
	Reverse map[domain.Letter]domain.Letter
}

// Identity returns the no-op mapping used when option randomization is off.
func Identity() OptionMap {
	m := OptionMap{
		Forward: make(map[domain.Letter]domain.Letter, len(domain.Letters)),
		Reverse: make(map[domain.Letter]domain.Letter, len(domain.Letters)),
	}
	for _, l := range domain.Letters {
		m.Forward[l] = l
		m.Reverse[l] = l
	}
	return m
}

// Options shuffles the four option texts into new slots and returns the
// permuted set together with the letter mapping needed to translate answers
// between canonical and presentation space.
func Options(opts domain.OptionSet, seed int64) (domain.OptionSet, OptionMap) {
	order := make([]domain.Letter, len(domain.Letters))
	copy(order, domain.Letters[:])

	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	shuffled := make(domain.OptionSet, len(order))
	m := OptionMap{
		Forward: make(map[domain.Letter]domain.Letter, len(order)),
		Reverse: make(map[domain.Letter]domain.Letter, len(order)),
	}
	for i, slot := range domain.Letters {
		original := order[i]
		shuffled[slot] = opts[original]
		m.Forward[original] = slot
		m.Reverse[slot] = original
	}
	return shuffled, m
}
