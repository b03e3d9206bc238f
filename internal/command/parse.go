package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/robojar-core/internal/controller"
	"github.com/nerrad567/robojar-core/internal/device"
)

// Action is what a command asks of a device.
type Action string

// Supported actions.
const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
	ActionOn    Action = "on"
	ActionOff   Action = "off"
	ActionPrime Action = "prime"

	// ActionSet requests Command.State directly.
	ActionSet Action = "set"

	// ActionReset and ActionTest address the whole rig.
	ActionReset Action = "reset"
	ActionTest  Action = "test"
)

// Command addresses one device, or the whole rig for ActionReset and
// ActionTest.
type Command struct {
	Kind   device.Kind  `json:"kind,omitempty"`
	Index  int          `json:"index,omitempty"` // valve number, 1-based
	Action Action       `json:"action"`
	State  device.State `json:"state,omitempty"` // ActionSet only
}

var verbs = map[string]Action{
	"open":  ActionOpen,
	"close": ActionClose,
	"shut":  ActionClose,
	"on":    ActionOn,
	"start": ActionOn,
	"off":   ActionOff,
	"stop":  ActionOff,
	"prime": ActionPrime,
	"reset": ActionReset,
	"test":  ActionTest,
}

var fillers = map[string]bool{
	"set": true, "turn": true, "the": true, "to": true, "please": true,
	"run": true, "all": true, "full": true, "sequence": true, "system": true,
}

// Parse resolves a phrase such as "open valve 2" or "pump on" into a
// Command. Word order is free; case and trailing punctuation are ignored.
// Valve numbers below 1 fail with controller.ErrInvalidDeviceIndex; the
// upper bound is checked by the controller.
func Parse(text string) (Command, error) {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		words[i] = strings.Trim(w, ".,!?")
	}
	if len(words) == 0 {
		return Command{}, ErrEmpty
	}

	var (
		cmd     Command
		hasKind bool
		indexed bool
		word    string
	)

	for i := 0; i < len(words); i++ {
		w := words[i]
		if fillers[w] || w == "" {
			continue
		}

		kind, index, ok := deviceWord(w)
		if !ok && w == "valve" {
			kind, ok = device.KindValve, true
		}
		if ok {
			if hasKind {
				return Command{}, fmt.Errorf("%w: more than one device in %q", ErrUnknownDevice, text)
			}
			hasKind = true
			cmd.Kind, cmd.Index = kind, index
			indexed = w != "valve"
			if kind == device.KindValve && !indexed && i+1 < len(words) {
				if n, err := strconv.Atoi(words[i+1]); err == nil {
					cmd.Index, indexed = n, true
					i++
				}
			}
			continue
		}

		if word != "" {
			return Command{}, fmt.Errorf("%w: %q and %q in %q", ErrUnknownAction, word, w, text)
		}
		word = w
	}

	if word == "" {
		return Command{}, fmt.Errorf("%w: none in %q", ErrUnknownAction, text)
	}

	if a, ok := verbs[word]; ok && (a == ActionReset || a == ActionTest) {
		if hasKind {
			return Command{}, fmt.Errorf("%w: %s applies to the whole rig", ErrUnknownAction, a)
		}
		return Command{Action: a}, nil
	}

	if !hasKind {
		return Command{}, fmt.Errorf("%w: in %q", ErrUnknownDevice, text)
	}
	if cmd.Kind == device.KindValve {
		if !indexed {
			return Command{}, ErrMissingIndex
		}
		if cmd.Index < 1 {
			return Command{}, fmt.Errorf("%w: valve %d", controller.ErrInvalidDeviceIndex, cmd.Index)
		}
	}

	if a, ok := verbs[word]; ok {
		cmd.Action = a
	} else {
		st, err := device.ParseState(cmd.Kind, word)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q for %s", ErrUnknownAction, word, cmd.Kind)
		}
		cmd.Action, cmd.State = ActionSet, st
	}

	if _, err := cmd.Targets(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// deviceWord recognises "pump", "sensor" and the joined form "valve2".
func deviceWord(w string) (device.Kind, int, bool) {
	switch w {
	case "pump":
		return device.KindPump, 0, true
	case "sensor":
		return device.KindSensor, 0, true
	}
	if rest, ok := strings.CutPrefix(w, "valve"); ok && rest != "" {
		if n, err := strconv.Atoi(rest); err == nil {
			return device.KindValve, n, true
		}
	}
	return "", 0, false
}

// Targets returns the states the command drives its device through, in
// order.
func (c Command) Targets() ([]device.State, error) {
	if c.Action == ActionSet {
		if _, err := device.ParseState(c.Kind, c.State.String()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnknownAction, err)
		}
		return []device.State{c.State}, nil
	}

	switch c.Kind {
	case device.KindValve:
		switch c.Action {
		case ActionOpen:
			return []device.State{device.StateOpening, device.StateOpen}, nil
		case ActionClose:
			return []device.State{device.StateClosing, device.StateClosed}, nil
		case ActionOff:
			return []device.State{device.StateIdle}, nil
		}
	case device.KindPump:
		switch c.Action {
		case ActionOn:
			return []device.State{device.StateRunning}, nil
		case ActionOff:
			return []device.State{device.StateIdle}, nil
		case ActionPrime:
			return []device.State{device.StatePriming}, nil
		}
	case device.KindSensor:
		switch c.Action {
		case ActionOn:
			return []device.State{device.StateActive}, nil
		case ActionOff:
			return []device.State{device.StateIdle}, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, c.Kind)
	}
	return nil, fmt.Errorf("%w: %s for %s", ErrUnknownAction, c.Action, c.Kind)
}

// Name returns the compact rig command name, e.g. valve2Open, pumpOn,
// sensorOff, valve1Closing or resetAll.
func (c Command) Name() string {
	switch c.Action {
	case ActionReset:
		return "resetAll"
	case ActionTest:
		return "runTest"
	case ActionSet:
		return Name(c.Kind, c.Index, c.State.String())
	}
	return Name(c.Kind, c.Index, string(c.Action))
}

// String renders the command as a canonical phrase.
func (c Command) String() string {
	switch c.Action {
	case ActionReset, ActionTest:
		return string(c.Action)
	}
	target := string(c.Kind)
	if c.Kind == device.KindValve {
		target += " " + strconv.Itoa(c.Index)
	}
	if c.Action == ActionSet {
		return "set " + target + " " + strings.ToLower(c.State.String())
	}
	return string(c.Action) + " " + target
}

// Name builds a compact command name from a device and a word: valve 2
// and "opening" give valve2Opening. index is ignored for non-valves.
func Name(kind device.Kind, index int, word string) string {
	prefix := string(kind)
	if kind == device.KindValve {
		prefix += strconv.Itoa(index)
	}
	return prefix + title(word)
}

func title(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
