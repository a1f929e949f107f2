package servo

// Mode selects the stepping algorithm the worker runs.
type Mode int

const (
	// ModeIdle is reported when the worker gate is closed.
	ModeIdle Mode = iota
	ModeInit
	ModeTimedAuto
	ModeConstantSpeed
	ModeWiggle
)

// String returns the name reported in snapshots and telemetry.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeInit:
		return "init"
	case ModeTimedAuto:
		return "timed"
	case ModeConstantSpeed:
		return "speed"
	case ModeWiggle:
		return "wiggle"
	default:
		return "unknown"
	}
}

// Channel is the bookkeeping for one PWM output.
// All positions are in control-step space.
type Channel struct {
	Index        int     `json:"index"`
	Position     int     `json:"position"`      // last written position
	Buffered     float64 `json:"buffered"`      // fractional accumulator for speed modes
	Goal         int     `json:"goal"`          // always within [MinPos, MaxPos]
	LastPosition int     `json:"last_position"` // start of the current segment
	InitPosition int     `json:"init_position"` // calibrated rest position
	Speed        float64 `json:"speed"`         // degrees per second
	Direction    int     `json:"direction"`     // +1 or -1, mounting compensation
	MinPos       int     `json:"min_pos"`
	MaxPos       int     `json:"max_pos"`
	Owned        bool    `json:"owned"` // driven by this engine
}

// Angle returns the physical angle of the current position.
func (c Channel) Angle() float64 {
	return ToPhysicalAngle(c.Position)
}

// goalFromAngle computes the clamped goal for an angle offset from the rest position.
func (c Channel) goalFromAngle(degrees float64) int {
	return clamp(c.InitPosition+c.Direction*StepsFromAngleDelta(degrees), c.MinPos, c.MaxPos)
}

// State is a point-in-time copy of an engine.
type State struct {
	Name     string               `json:"name"`
	Mode     Mode                 `json:"-"`
	ModeName string               `json:"mode"`
	Running  bool                 `json:"running"`
	Channels [NumChannels]Channel `json:"channels"`
}

// Owned returns the channels the engine drives, in index order.
func (s State) Owned() []Channel {
	out := make([]Channel, 0, NumChannels)
	for _, c := range s.Channels {
		if c.Owned {
			out = append(out, c)
		}
	}
	return out
}

// Positions returns the current position of every owned channel, keyed by index.
func (s State) Positions() map[int]int {
	out := make(map[int]int, NumChannels)
	for _, c := range s.Owned() {
		out[c.Index] = c.Position
	}
	return out
}
