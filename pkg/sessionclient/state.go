package sessionclient

// State is where a client stands in its current room.
type State int

const (
	// Idle: not in a room.
	Idle State = iota
	// Joined: in a room, nobody is live.
	Joined
	// Broadcasting: this client owns the room's board.
	Broadcasting
	// Viewing: following another client's board.
	Viewing
	// Solo: the broadcaster left; the board is the client's own again.
	Solo
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joined:
		return "joined"
	case Broadcasting:
		return "broadcasting"
	case Viewing:
		return "viewing"
	case Solo:
		return "solo"
	default:
		return "unknown"
	}
}

// transition is a state change waiting to be reported to OnStateChange.
type transition struct {
	from, to State
}

// setStateLocked records a state change. Callers hold c.mu.
func (c *Client) setStateLocked(to State, pending []transition) []transition {
	if c.state == to {
		return pending
	}
	pending = append(pending, transition{from: c.state, to: to})
	c.state = to
	if to == Broadcasting {
		c.startHeartbeatLocked()
	} else {
		c.stopHeartbeatLocked()
	}
	return pending
}

func (c *Client) notify(pending []transition) {
	if c.handlers.OnStateChange == nil {
		return
	}
	for _, t := range pending {
		c.handlers.OnStateChange(t.from, t.to)
	}
}
