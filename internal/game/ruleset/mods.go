package ruleset

import "strings"

// Mods is the bitmask of gameplay modifiers a client or match has enabled.
type Mods uint32

const (
	ModNoFail      Mods = 1 << 0
	ModEasy        Mods = 1 << 1
	ModTouchDevice Mods = 1 << 2
	ModHidden      Mods = 1 << 3
	ModHardRock    Mods = 1 << 4
	ModSuddenDeath Mods = 1 << 5
	ModDoubleTime  Mods = 1 << 6
	ModRelax       Mods = 1 << 7
	ModHalfTime    Mods = 1 << 8
	ModNightcore   Mods = 1 << 9
	ModFlashlight  Mods = 1 << 10
	ModAutoplay    Mods = 1 << 11
	ModSpunOut     Mods = 1 << 12
	ModAutopilot   Mods = 1 << 13
	ModPerfect     Mods = 1 << 14

	// ModNone is the empty modifier set.
	ModNone Mods = 0

	// SpeedChangingMods alter playback rate and always stay at match level.
	SpeedChangingMods = ModDoubleTime | ModNightcore | ModHalfTime
)

var modAcronyms = []struct {
	mod  Mods
	name string
}{
	{ModNoFail, "NF"},
	{ModEasy, "EZ"},
	{ModTouchDevice, "TD"},
	{ModHidden, "HD"},
	{ModHardRock, "HR"},
	{ModSuddenDeath, "SD"},
	{ModDoubleTime, "DT"},
	{ModRelax, "RX"},
	{ModHalfTime, "HT"},
	{ModNightcore, "NC"},
	{ModFlashlight, "FL"},
	{ModAutoplay, "AU"},
	{ModSpunOut, "SO"},
	{ModAutopilot, "AP"},
	{ModPerfect, "PF"},
}

// Has reports whether every bit of flag is set in m.
func (m Mods) Has(flag Mods) bool {
	return m&flag == flag
}

// Speed returns only the speed-changing subset of m.
func (m Mods) Speed() Mods {
	return m & SpeedChangingMods
}

// WithoutSpeed returns m with speed-changing mods removed.
func (m Mods) WithoutSpeed() Mods {
	return m &^ SpeedChangingMods
}

// String renders m as concatenated acronyms, e.g. "HDDT", or "NM" when empty.
func (m Mods) String() string {
	if m == ModNone {
		return "NM"
	}
	var sb strings.Builder
	for _, a := range modAcronyms {
		if m&a.mod != 0 {
			sb.WriteString(a.name)
		}
	}
	return sb.String()
}
