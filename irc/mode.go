package irc

// ModeChange is one mode letter toggled by a MODE command, with its
// argument if the mode takes one.
type ModeChange struct {
	Add     bool
	Letter  byte
	Arg     string
	HasArg  bool
}

// parseModeString parses a MODE command's mode-string and args ("+ov-b",
// []string{"alice", "*!*@host"}, ...) into individual changes. It is
// deliberately shallow: it does not know which letters take an argument in
// general (that depends on the server's CHANMODES ISUPPORT token, which
// varies per network), so it consumes one argument per mode letter only for
// letters known to take one: the membership prefix modes (from ISUPPORT
// PREFIX) always take a nick argument, "k", "b", "e" and "I" take one whether
// added or removed, and "l" takes one only when added. Anything else is
// treated as argument-less.
func parseModeString(modes string, args []string, isPrefixMode func(letter byte) bool) []ModeChange {
	var changes []ModeChange
	add := true
	argi := 0

	takesArg := func(letter byte, adding bool) bool {
		if isPrefixMode(letter) {
			return true
		}
		switch letter {
		case 'k', 'b', 'e', 'I':
			return true
		case 'l':
			return adding
		}
		return false
	}

	for i := 0; i < len(modes); i++ {
		switch modes[i] {
		case '+':
			add = true
		case '-':
			add = false
		default:
			letter := modes[i]
			change := ModeChange{Add: add, Letter: letter}
			if takesArg(letter, add) && argi < len(args) {
				change.Arg = args[argi]
				change.HasArg = true
				argi++
			}
			changes = append(changes, change)
		}
	}

	return changes
}

// registeredModeLetter is the user mode this client treats as "Registered"
// for the purpose of flushing channels queued behind ERR_NOCHANMODES /
// ERR_NEEDREGGEDNICK (see client.go's registrationRequiredChannels).
const registeredModeLetter = 'r'

// selfModeGainedRegistered reports whether a self-MODE string adds the
// Registered user mode.
func selfModeGainedRegistered(modes string) bool {
	add := true
	for i := 0; i < len(modes); i++ {
		switch modes[i] {
		case '+':
			add = true
		case '-':
			add = false
		case registeredModeLetter:
			if add {
				return true
			}
		}
	}
	return false
}

// splitModeArgs is a small helper mirroring word() in wire.go, used to pull
// the mode-string apart from its trailing argument list in a MODE message's
// params.
func splitModeArgs(params []string) (target, modes string, args []string) {
	if len(params) == 0 {
		return "", "", nil
	}
	target = params[0]
	if len(params) > 1 {
		modes = params[1]
	}
	if len(params) > 2 {
		args = params[2:]
	}
	return
}
