package web

import (
	"encoding/json"

	"github.com/bcspragu/Werewolf/werewolf"
)

// SessionUpdate is broadcast to displays after every session mutation.
type SessionUpdate struct {
	Session *werewolf.Session `json:"session"`
}

func (su *SessionUpdate) MarshalJSON() ([]byte, error) {
	type alias SessionUpdate
	return withAction("SESSION_UPDATE", (*alias)(su))
}

// GameEnd is broadcast when the moderator archives the game.
type GameEnd struct {
	Session *werewolf.Session `json:"session"`
}

func (ge *GameEnd) MarshalJSON() ([]byte, error) {
	type alias GameEnd
	return withAction("GAME_END", (*alias)(ge))
}

// TimerExpired tells displays to sound the alarm.
type TimerExpired struct{}

func (te *TimerExpired) MarshalJSON() ([]byte, error) {
	type alias TimerExpired
	return withAction("TIMER_EXPIRED", (*alias)(te))
}

// TimerState is the countdown read-out.
type TimerState struct {
	Remaining int  `json:"remaining"`
	Running   bool `json:"running"`
}

// withAction splices the action tag displays switch on into a message's
// JSON object. The alias types above shed the MarshalJSON method so this
// doesn't recurse.
func withAction(action string, msg interface{}) ([]byte, error) {
	dat, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(dat, &fields); err != nil {
		return nil, err
	}
	fields["action"] = json.RawMessage(`"` + action + `"`)
	return json.Marshal(fields)
}
