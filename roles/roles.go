// Package roles holds the static role catalog and the setup heuristics the
// moderator uses to put together a role pool.
package roles

import (
	"math/rand"

	"github.com/bcspragu/Werewolf/werewolf"
)

// Catalog maps every role id to its definition. Process-wide static
// configuration, never mutated.
var Catalog = map[werewolf.RoleID]werewolf.Role{
	werewolf.Werewolf: {
		ID:           werewolf.Werewolf,
		Name:         "Werewolf",
		Description:  "Wakes at night to kill a villager.",
		Image:        "/roles/werewolf.png",
		BalanceScore: -6,
	},
	werewolf.Villager: {
		ID:           werewolf.Villager,
		Name:         "Villager",
		Description:  "Roots out the werewolves during the day.",
		Image:        "/roles/villager.png",
		BalanceScore: 1,
	},
	werewolf.Seer: {
		ID:           werewolf.Seer,
		Name:         "Seer",
		Description:  "Wakes at night to learn one player's role.",
		Image:        "/roles/seer.png",
		BalanceScore: 7,
		MaxCount:     1,
	},
	werewolf.Bodyguard: {
		ID:           werewolf.Bodyguard,
		Name:         "Bodyguard",
		Description:  "Shields one player from death each night.",
		Image:        "/roles/bodyguard.png",
		BalanceScore: 3,
		MaxCount:     1,
	},
	werewolf.Hunter: {
		ID:           werewolf.Hunter,
		Name:         "Hunter",
		Description:  "Takes someone down with them when killed.",
		Image:        "/roles/hunter.png",
		BalanceScore: 3,
		MaxCount:     1,
	},
	werewolf.Cupid: {
		ID:           werewolf.Cupid,
		Name:         "Cupid",
		Description:  "Links two players as lovers on the first night.",
		Image:        "/roles/cupid.png",
		BalanceScore: -3,
		MaxCount:     1,
	},
	werewolf.Witch: {
		ID:           werewolf.Witch,
		Name:         "Witch",
		Description:  "Holds one poison potion and one healing potion.",
		Image:        "/roles/witch.png",
		BalanceScore: 4,
		MaxCount:     1,
	},
	werewolf.Lycan: {
		ID:           werewolf.Lycan,
		Name:         "Lycan",
		Description:  "A villager the Seer sees as a werewolf.",
		Image:        "/roles/lycan.png",
		BalanceScore: -1,
		MaxCount:     1,
	},
	werewolf.Minion: {
		ID:           werewolf.Minion,
		Name:         "Minion",
		Description:  "Knows the werewolves and works for them.",
		Image:        "/roles/minion.png",
		BalanceScore: -4,
		MaxCount:     1,
	},
	werewolf.Zombie: {
		ID:           werewolf.Zombie,
		Name:         "Zombie",
		Description:  "Can feed on the dead to come back to life.",
		Image:        "/roles/zombie.png",
		BalanceScore: -2,
		MaxCount:     1,
	},
}

// Suggest returns a reasonable role pool for the given player count. The
// order is load-bearing: the setup screen and the balance read-out both
// display the pool as returned.
func Suggest(playerCount int) []werewolf.Role {
	var pool []werewolf.Role

	wolves := playerCount / 4
	if wolves < 1 {
		wolves = 1
	}
	for i := 0; i < wolves; i++ {
		pool = append(pool, Catalog[werewolf.Werewolf])
	}

	pool = append(pool, Catalog[werewolf.Seer])

	if playerCount >= 5 {
		pool = append(pool, Catalog[werewolf.Bodyguard])
	}
	if playerCount >= 7 {
		pool = append(pool, Catalog[werewolf.Hunter])
	}
	if playerCount >= 9 {
		pool = append(pool, Catalog[werewolf.Witch])
	}

	for len(pool) < playerCount {
		pool = append(pool, Catalog[werewolf.Villager])
	}

	return pool
}

// Balance sums the balance scores of a pool. Positive leans village,
// negative leans wolves.
func Balance(pool []werewolf.Role) int {
	total := 0
	for _, r := range pool {
		total += r.BalanceScore
	}
	return total
}

// Shuffle returns a uniformly random permutation of the pool, for
// moderators who want roles dealt blind instead of picked. Fisher-Yates,
// so every ordering is equally likely.
func Shuffle(pool []werewolf.Role, r *rand.Rand) []werewolf.Role {
	shuffled := append([]werewolf.Role(nil), pool...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

// NightStep is one role call in the night script.
type NightStep struct {
	Role   werewolf.RoleID `json:"role"`
	Action string          `json:"action"`
}

// nightOrder is the order roles are called each night. Roles not in the
// game are skipped at lookup time, not here.
var nightOrder = []NightStep{
	{werewolf.Cupid, "Wake Cupid. Have them link two players."},
	{werewolf.Zombie, "Wake the Zombie. Ask if they want to use their ability."},
	{werewolf.Seer, "Wake the Seer. Ask who they want to inspect."},
	{werewolf.Bodyguard, "Wake the Bodyguard. Ask who they want to protect."},
	{werewolf.Werewolf, "Wake the Werewolves. Ask who they want to kill."},
	{werewolf.Minion, "Wake the Minion. Show them who the Werewolves are."},
	{werewolf.Witch, "Wake the Witch. Point out the victim, ask about potions."},
	{werewolf.Hunter, "Wake the Hunter, but only to confirm their role."},
}

// NightOrder returns the night script filtered down to roles held by
// living players in the given session.
func NightOrder(s *werewolf.Session) []NightStep {
	alive := make(map[werewolf.RoleID]bool)
	for _, gp := range s.Players {
		if gp.Role != nil && gp.Alive {
			alive[gp.Role.ID] = true
		}
	}

	var steps []NightStep
	for _, step := range nightOrder {
		if alive[step.Role] {
			steps = append(steps, step)
		}
	}
	return steps
}
