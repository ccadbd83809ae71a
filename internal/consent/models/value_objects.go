package models

// Level is the graduated authorization tier controlling how much user
// involvement is required before content may be stored. The numeric ordering
// is load-bearing: elevation always moves to a higher value, never lower.
type Level int

const (
	LevelAuto Level = iota
	LevelImplicit
	LevelExplicit
	LevelProtected
)

var levelNames = map[Level]string{
	LevelAuto:      "auto",
	LevelImplicit:  "implicit",
	LevelExplicit:  "explicit",
	LevelProtected: "protected",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// IsValid checks if the level is one of the supported enum values.
func (l Level) IsValid() bool {
	return l >= LevelAuto && l <= LevelProtected
}

// ParseLevel maps a wire-format level name to its Level value.
func ParseLevel(s string) (Level, bool) {
	for level, name := range levelNames {
		if name == s {
			return level, true
		}
	}
	return LevelAuto, false
}

// MaxLevel returns the highest of the given levels.
func MaxLevel(levels ...Level) Level {
	max := LevelAuto
	for _, l := range levels {
		if l > max {
			max = l
		}
	}
	return max
}

// Layer identifies which tier of the layered memory store a request targets.
type Layer string

const (
	LayerWorking   Layer = "working"
	LayerEpisodic  Layer = "episodic"
	LayerSemantic  Layer = "semantic"
	LayerProtected Layer = "protected"
)

// ValidLayers is the single source of truth for all memory layers.
var ValidLayers = map[Layer]bool{
	LayerWorking:   true,
	LayerEpisodic:  true,
	LayerSemantic:  true,
	LayerProtected: true,
}

// IsValid checks if the layer is one of the supported enum values.
func (l Layer) IsValid() bool {
	return ValidLayers[l]
}

// DefaultLevel returns the consent level a layer demands when the request
// does not ask for more.
func (l Layer) DefaultLevel() Level {
	switch l {
	case LayerWorking:
		return LevelAuto
	case LayerEpisodic:
		return LevelImplicit
	case LayerSemantic:
		return LevelExplicit
	case LayerProtected:
		return LevelProtected
	}
	return LevelExplicit
}

// Scope bounds how far an approval reaches beyond the single request that
// triggered it.
type Scope string

const (
	ScopeSingle   Scope = "single"
	ScopeSession  Scope = "session"
	ScopeCategory Scope = "category"
)

// IsValid checks if the scope is one of the supported enum values.
func (s Scope) IsValid() bool {
	return s == ScopeSingle || s == ScopeSession || s == ScopeCategory
}
