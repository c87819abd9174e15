package loadgen

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/okian/shobdo/internal/domain/model"
	"github.com/okian/shobdo/internal/domain/scoring"
)

// Ranges for generated plays.
const (
	maxQuestions  = 20
	minUserTimeMs = 5_000
	maxUserTimeMs = 120_000
	msisdnPrefix  = "8801"
)

// Generator produces players and plays. It is not safe for concurrent use.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator. A zero seed picks a random one.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{faker: gofakeit.New(seed)}
}

// Players returns n distinct MSISDN-shaped player ids.
func (g *Generator) Players(n int) []string {
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for len(out) < n {
		id := msisdnPrefix + g.faker.Numerify("#########")
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Plays returns perPlayer plays for every player, shuffled so one player's
// plays interleave with everyone else's.
func (g *Generator) Plays(players []string, perPlayer int) []Play {
	out := make([]Play, 0, len(players)*perPlayer)
	for _, p := range players {
		for range perPlayer {
			out = append(out, g.play(p))
		}
	}
	g.faker.ShuffleAnySlice(out)
	return out
}

func (g *Generator) play(player string) Play {
	answered := g.faker.IntRange(1, maxQuestions)
	correct := g.faker.IntRange(0, answered)
	// whole milliseconds survive the server's truncation unchanged
	ms := g.faker.IntRange(minUserTimeMs, maxUserTimeMs)
	return Play{
		MSISDN:         player,
		CorrectScore:   int64(correct),
		IncorrectScore: int64(answered - correct),
		UserTime:       float64(ms) / 1000,
	}
}

// Performance converts a play to its domain shape.
func (p Play) Performance() model.Performance {
	return model.Performance{
		Correct:   p.CorrectScore,
		Incorrect: p.IncorrectScore,
		Elapsed:   toElapsed(p.UserTime),
	}
}

// Performance converts a leaderboard row to its domain shape.
func (e Entry) Performance() model.Performance {
	return model.Performance{
		Correct:   e.CorrectScore,
		Incorrect: e.IncorrectScore,
		Elapsed:   toElapsed(e.UserTime),
	}
}

func toElapsed(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
}

// BestOf folds plays into each player's best by the scoring order.
func BestOf(plays []Play) map[string]Play {
	best := make(map[string]Play)
	for _, p := range plays {
		cur, ok := best[p.MSISDN]
		if !ok || scoring.Better(p.Performance(), cur.Performance()) {
			best[p.MSISDN] = p
		}
	}
	return best
}
