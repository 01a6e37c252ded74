package profile

// Invalidation schemes, from least to most inclusive.
const (
	SchemeIndividual = "individual"
	SchemeConnected  = "connected"
	SchemeSinceLast  = "since-last"
	SchemeAll        = "all"
	SchemeManual     = "manual"
)

// Level orders publish operations and invalidation thresholds.
type Level int

// Levels. LevelManual is above every operation so it never triggers.
const (
	LevelIndividual Level = iota + 1
	LevelConnected
	LevelSinceLast
	LevelAll
	LevelManual
)

var schemeLevels = map[string]Level{
	SchemeIndividual: LevelIndividual,
	SchemeConnected:  LevelConnected,
	SchemeSinceLast:  LevelSinceLast,
	SchemeAll:        LevelAll,
	SchemeManual:     LevelManual,
}

// InvalidationLevel returns the configured minimum level. An unset scheme
// means every publish invalidates.
func (a AWSSettings) InvalidationLevel() Level {
	if a.InvalidationScheme == "" {
		return LevelIndividual
	}
	if l, ok := schemeLevels[a.InvalidationScheme]; ok {
		return l
	}
	return LevelManual
}

// ShouldInvalidate decides whether an operation at level op must trigger an
// edge-cache invalidation for p.
func ShouldInvalidate(p Profile, op Level) bool {
	if !p.Remote() || p.AWS.DistributionID == "" {
		return false
	}
	threshold := p.AWS.InvalidationLevel()
	if threshold == LevelManual {
		return false
	}
	return op >= threshold
}
