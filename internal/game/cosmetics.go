package game

import "math/rand"

// Palette is the set of car colours players are dressed in.
var Palette = []string{
	"black", "blue", "brown", "gold", "gray", "green", "lavender", "orange",
	"pink", "red", "salmon", "silver", "turquoise", "white", "yellow",
}

// AssignCosmetics draws n cosmetics from the palette without reuse until the
// palette runs out, then starts a fresh shuffled pass.
func AssignCosmetics(n int, rng *rand.Rand) []string {
	out := make([]string, 0, n)
	for len(out) < n {
		pass := append([]string(nil), Palette...)
		shuffle := rand.Shuffle
		if rng != nil {
			shuffle = rng.Shuffle
		}
		shuffle(len(pass), func(i, j int) { pass[i], pass[j] = pass[j], pass[i] })
		for _, c := range pass {
			if len(out) == n {
				break
			}
			out = append(out, c)
		}
	}
	return out
}
