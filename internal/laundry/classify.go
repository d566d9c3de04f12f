package laundry

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Markers are the substrings the portal uses in machine names and status texts.
// They are matched case-insensitively.
type Markers struct {
	// NotBookable appears in the machine name when the slot cannot be booked right now.
	NotBookable []string `json:"not_bookable"`
	// Mine appears in the machine name when the slot is reserved by the logged in user.
	Mine []string `json:"mine"`
	// InProgress appears in the status text while a machine is running or reserved.
	InProgress []string `json:"in_progress"`
	// Finished precedes the "HH:MM" at which the last cycle ended.
	Finished []string `json:"finished"`
	// Available appears in the machine name of a free slot.
	Available []string `json:"available"`
	// ReadyAt precedes the "HH:MM" at which a running cycle is expected to end.
	ReadyAt []string `json:"ready_at"`
}

// DefaultMarkers returns the Swedish wording used by the RCARD M5 WebBoka portal.
func DefaultMarkers() Markers {
	return Markers{
		NotBookable: []string{"ej ledig"},
		Mine:        []string{"min bokning"},
		InProgress:  []string{"startad", "pågående", "kvar", "reserverad"},
		Finished:    []string{"avslutades"},
		Available:   []string{"ledig"},
		ReadyAt:     []string{"klar ca:"},
	}
}

// DefaultRecentWindow is how long after a finished cycle a machine counts as recently used.
const DefaultRecentWindow = 60 * time.Minute

type input struct {
	name   string
	status string
	now    time.Time
}

type rule struct {
	id    string
	apply func(in input) (MachineState, bool)
}

// Classifier maps a machine's name and status text to a MachineState by evaluating an ordered
// rule table, the first rule that applies wins.
type Classifier struct {
	rules        []rule
	readyMarkers []string
}

// NewClassifier builds the rule table from markers. A non-positive window falls back to
// DefaultRecentWindow.
func NewClassifier(markers Markers, recentWindow time.Duration) Classifier {
	if recentWindow <= 0 {
		recentWindow = DefaultRecentWindow
	}
	recentMinutes := int(recentWindow / time.Minute)
	c := Classifier{
		readyMarkers: lowerAll(markers.ReadyAt),
	}

	notBookable := lowerAll(markers.NotBookable)
	mine := lowerAll(markers.Mine)
	inProgress := lowerAll(markers.InProgress)
	finished := lowerAll(markers.Finished)
	available := lowerAll(markers.Available)

	// order matters, see Explain for the rule ids.
	c.rules = []rule{
		{
			id: "name-not-bookable",
			apply: func(in input) (MachineState, bool) {
				return StateNotBookable, containsAny(in.name, notBookable)
			},
		},
		{
			id: "name-mine",
			apply: func(in input) (MachineState, bool) {
				return StateTaken, containsAny(in.name, mine)
			},
		},
		{
			id: "status-in-progress",
			apply: func(in input) (MachineState, bool) {
				return StateTaken, containsAny(in.status, inProgress)
			},
		},
		{
			id: "status-finished",
			apply: func(in input) (MachineState, bool) {
				rest, ok := afterAny(in.status, finished)
				if !ok {
					return "", false
				}
				finish, ok := parseClock(rest)
				if ok && recentlyFinished(in.now, finish, recentMinutes) {
					return StateRecentlyUsed, true
				}
				return StateAvailable, true
			},
		},
		{
			id: "name-available",
			apply: func(in input) (MachineState, bool) {
				return StateAvailable, containsAny(in.name, available)
			},
		},
	}
	return c
}

// DefaultClassifier uses DefaultMarkers and DefaultRecentWindow.
func DefaultClassifier() Classifier {
	return NewClassifier(DefaultMarkers(), DefaultRecentWindow)
}

// IsZero reports whether c is the zero Classifier, which has no rules.
func (c Classifier) IsZero() bool {
	return len(c.rules) == 0
}

// Classify returns the state of a machine. It is total: any input produces exactly one state.
func (c Classifier) Classify(name, status string, now time.Time) MachineState {
	state, _ := c.Explain(name, status, now)
	return state
}

// Explain is Classify that also returns the id of the rule that decided, "default" if none did.
func (c Classifier) Explain(name, status string, now time.Time) (MachineState, string) {
	in := input{
		name:   strings.ToLower(name),
		status: strings.ToLower(status),
		now:    now,
	}
	for _, r := range c.rules {
		state, ok := r.apply(in)
		if ok {
			return state, r.id
		}
	}
	return StateAvailable, "default"
}

// ReadyAt returns the estimated end of a running cycle if the status text carries one.
// The estimate is today at HH:MM in now's location, or tomorrow if that is not after now.
func (c Classifier) ReadyAt(status string, now time.Time) (time.Time, bool) {
	rest, ok := afterAny(strings.ToLower(status), c.readyMarkers)
	if !ok {
		return time.Time{}, false
	}
	minutes, ok := parseClock(rest)
	if !ok {
		return time.Time{}, false
	}

	ready := time.Date(
		now.Year(), now.Month(), now.Day(),
		minutes/60, minutes%60, 0, 0,
		now.Location(),
	)
	if !ready.After(now) {
		ready = ready.AddDate(0, 0, 1)
	}
	return ready, true
}

// Machine builds a classified Machine.
func (c Classifier) Machine(name, status string, now time.Time) Machine {
	m := Machine{
		Name:   name,
		Status: status,
		State:  c.Classify(name, status, now),
	}
	if ready, ok := c.ReadyAt(status, now); ok {
		m.ReadyAt = &ready
	}
	return m
}

// recentlyFinished compares wall clock minutes only, a finish time later in the day than now is
// taken to be from yesterday.
func recentlyFinished(now time.Time, finish, window int) bool {
	current := now.Hour()*60 + now.Minute()

	var diff int
	if current >= finish {
		diff = current - finish
	} else {
		// finished before midnight, now is after it
		diff = minutesPerDay - finish + current
	}
	return diff <= window
}

var clockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

// parseClock finds the first H:MM or HH:MM in text and returns it as minutes since midnight.
func parseClock(text string) (int, bool) {
	groups := clockPattern.FindStringSubmatch(text)
	if len(groups) < 3 {
		return 0, false
	}
	hour, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(groups[2])
	if err != nil {
		return 0, false
	}
	if hour > 23 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// afterAny returns the text following the first marker found.
func afterAny(text string, markers []string) (string, bool) {
	for _, m := range markers {
		idx := strings.Index(text, m)
		if idx >= 0 {
			return text[idx+len(m):], true
		}
	}
	return "", false
}
