package ruleset

// Mode is a game mode, including the server-side relax and autopilot variants.
type Mode uint8

const (
	ModeVanillaStandard Mode = 0
	ModeVanillaTaiko    Mode = 1
	ModeVanillaCatch    Mode = 2
	ModeVanillaMania    Mode = 3

	ModeRelaxStandard Mode = 4
	ModeRelaxTaiko    Mode = 5
	ModeRelaxCatch    Mode = 6

	ModeAutopilotStandard Mode = 8
)

var modeNames = map[Mode]string{
	ModeVanillaStandard:   "vn!std",
	ModeVanillaTaiko:      "vn!taiko",
	ModeVanillaCatch:      "vn!catch",
	ModeVanillaMania:      "vn!mania",
	ModeRelaxStandard:     "rx!std",
	ModeRelaxTaiko:        "rx!taiko",
	ModeRelaxCatch:        "rx!catch",
	ModeAutopilotStandard: "ap!std",
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Vanilla returns the mode as the game client understands it.
func (m Mode) Vanilla() Mode {
	switch {
	case m >= ModeAutopilotStandard:
		return m - 8
	case m >= ModeRelaxStandard:
		return m - 4
	default:
		return m
	}
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// NormalizeModeMods folds the relax and autopilot modifiers a client reports
// into the server-side mode variant. Relax has no mania variant and autopilot
// only has a standard variant, so the modifier is cleared in those modes.
// Relax wins when both are set: autopilot is not looked at once relax was
// seen, even when relax itself was cleared. Modes the client cannot report
// are returned unchanged.
//
// Postcondition: the returned mode is Valid whenever the input mode was a
// vanilla mode.
func NormalizeModeMods(mode Mode, mods Mods) (Mode, Mods) {
	if mode > ModeVanillaMania {
		return mode, mods
	}
	if mods&ModRelax != 0 {
		if mode != ModeVanillaMania {
			return mode + 4, mods
		}
		return mode, mods &^ ModRelax
	}
	if mods&ModAutopilot != 0 {
		if mode == ModeVanillaStandard {
			return mode + 8, mods
		}
		mods &^= ModAutopilot
	}
	return mode, mods
}
