package laundry

import "time"

// MachineState is the normalized availability of a single machine.
type MachineState string

const (
	StateAvailable    MachineState = "available"
	StateTaken        MachineState = "taken"
	StateNotBookable  MachineState = "not_bookable"
	StateRecentlyUsed MachineState = "recently_used"
)

// Valid reports whether s is one of the four known states.
func (s MachineState) Valid() bool {
	switch s {
	case StateAvailable, StateTaken, StateNotBookable, StateRecentlyUsed:
		return true
	}
	return false
}

// Machine is one bookable machine slot as shown on the status page.
type Machine struct {
	Name   string       `json:"name"`
	Status string       `json:"status"`
	State  MachineState `json:"state"`
	// ReadyAt is when the portal estimates the running cycle will be done, if it says so.
	ReadyAt *time.Time `json:"ready_at,omitempty"`
}

// ResourceGroup is a named cluster of machines, usually one laundry room.
type ResourceGroup struct {
	Name     string    `json:"name"`
	Machines []Machine `json:"machines"`
}

// ScrapeResult is every resource group on the status page, in document order.
type ScrapeResult []ResourceGroup

// MachineCount returns the number of machines across all groups.
func (r ScrapeResult) MachineCount() int {
	n := 0
	for _, group := range r {
		n += len(group.Machines)
	}
	return n
}
