package game

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"guesswho/internal/model"
)

var roleNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("guesswho/roles"))

var defaultRoles = []struct {
	name        string
	description string
	special     bool
}{
	{"Agent", "Participate in 3+ goals", false},
	{"Detonator", "Get 3+ Demos", false},
	{"Fool", "Make everyone guess you're a something different", true},
	{"Guardian", "Make 3+ Saves", false},
	{"King", "Teammate can't score. Must win game", false},
	{"Mafia", "Lose the game", false},
	{"Pacifist", "Can't score goals. Must win", false},
	{"Villager", "Win the game", false},
}

// RoleID is the stable catalog id for a role name.
func RoleID(name string) string {
	return uuid.NewSHA1(roleNamespace, []byte(name)).String()
}

// DefaultRoles returns the shipped catalog sorted by name.
func DefaultRoles(now time.Time) []model.Role {
	roles := make([]model.Role, 0, len(defaultRoles))
	for _, r := range defaultRoles {
		roles = append(roles, model.Role{
			ID:          RoleID(r.name),
			Name:        r.name,
			Description: r.description,
			Special:     r.special,
			CreatedAt:   now,
		})
	}
	SortRoles(roles)
	return roles
}

// SortRoles orders roles by name.
func SortRoles(roles []model.Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}
