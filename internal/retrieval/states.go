package retrieval

// State is a step of the resolution cascade.
type State string

const (
	StateValidateLocation   State = "validate_location"
	StateCacheToday         State = "cache_today"
	StateLiveToday          State = "live_today"
	StateCacheHistorical    State = "cache_historical"
	StateExternalHistorical State = "external_historical"
	StateNearby             State = "nearby"
	StateTrend              State = "trend"
	StateExhausted          State = "exhausted"

	StateResolved    State = "resolved"
	StateSuggestions State = "suggestions"
	StateEmpty       State = "empty"
)

// Terminal reports whether the cascade stops at s.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateSuggestions || s == StateEmpty
}

// Signal is what a step reports back to the cascade.
type Signal string

const (
	SignalFound      Signal = "found"
	SignalMiss       Signal = "miss"
	SignalToday      Signal = "today"
	SignalHistorical Signal = "historical"
	SignalNearby     Signal = "nearby"
	SignalTrend      Signal = "trend"
	SignalSuggest    Signal = "suggest"
	SignalNoLocation Signal = "no_location"
)

// Next returns the state after s given sig. Unknown pairs end the cascade
// empty.
func Next(s State, sig Signal) State {
	if s.Terminal() {
		return s
	}
	if s == StateValidateLocation {
		switch sig {
		case SignalToday:
			return StateCacheToday
		case SignalHistorical:
			return StateCacheHistorical
		case SignalNearby:
			return StateNearby
		case SignalTrend:
			return StateTrend
		case SignalSuggest:
			return StateSuggestions
		default:
			return StateEmpty
		}
	}
	if s == StateExhausted {
		return StateEmpty
	}

	switch sig {
	case SignalFound:
		return StateResolved
	case SignalMiss:
		return fallThrough[s]
	default:
		return StateEmpty
	}
}

// fallThrough is where each data tier goes when it finds nothing.
var fallThrough = map[State]State{
	StateCacheToday:         StateLiveToday,
	StateLiveToday:          StateCacheHistorical,
	StateCacheHistorical:    StateExternalHistorical,
	StateExternalHistorical: StateNearby,
	StateNearby:             StateExhausted,
	StateTrend:              StateEmpty,
}
