package protocol

// Embedded player events.
const (
	PlayerEventCommand      = "command"
	PlayerEventListening    = "listening"
	PlayerEventReady        = "onReady"
	PlayerEventInfoDelivery = "infoDelivery"
)

// Embedded player transport functions.
const (
	FuncPlay   = "playVideo"
	FuncPause  = "pauseVideo"
	FuncStop   = "stopVideo"
	FuncSeekTo = "seekTo"
	FuncMute   = "mute"
	FuncUnmute = "unMute"
)

// Embedded player states reported in infoDelivery.
const (
	PlayerUnstarted = -1
	PlayerEnded     = 0
	PlayerPlaying   = 1
	PlayerPaused    = 2
	PlayerBuffering = 3
	PlayerCued      = 5
)

// PlayerCommand is a fire-and-forget instruction to an embedded player.
type PlayerCommand struct {
	Event string `json:"event"`
	Func  string `json:"func,omitempty"`
	Args  []any  `json:"args"`
	ID    string `json:"id,omitempty"`
}

// NewPlayerCommand builds a command frame.
func NewPlayerCommand(fn string, args ...any) PlayerCommand {
	if args == nil {
		args = []any{}
	}
	return PlayerCommand{Event: PlayerEventCommand, Func: fn, Args: args}
}

// NewPlayerListen builds the listen subscription sent once a player is ready.
func NewPlayerListen(id string) PlayerCommand {
	return PlayerCommand{Event: PlayerEventListening, Args: []any{}, ID: id}
}

// PlayerEvent is an authoritative notification from an embedded player.
type PlayerEvent struct {
	Event string      `json:"event"`
	Info  *PlayerInfo `json:"info,omitempty"`
}

// PlayerInfo carries the fields a player chose to deliver; absent fields keep
// their shadow values.
type PlayerInfo struct {
	CurrentTime *float64 `json:"currentTime,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	PlayerState *int     `json:"playerState,omitempty"`
	Muted       *bool    `json:"muted,omitempty"`
}
