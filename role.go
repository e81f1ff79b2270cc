package routecheck

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role represents the identity a browser session is presenting to the
// application under test. The application derives the role entirely from
// client-side storage so roles are simulated by seeding localStorage.
//
// Roles are ordered. A session may only move up the order within a single
// run because storage keys are added and never cleared.
type Role int

// Role constants, in transition order.
const (
	RoleUnauthenticated Role = iota
	RoleTeam
	RoleAdmin
)

// String returns the short name of the role.
func (r Role) String() string {
	switch r {
	case RoleUnauthenticated:
		return "unauthenticated"
	case RoleTeam:
		return "team"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Title returns the role name as displayed in the console transcript.
func (r Role) Title() string {
	switch r {
	case RoleUnauthenticated:
		return "Unauthenticated User"
	case RoleTeam:
		return "Authenticated User"
	case RoleAdmin:
		return "Admin User"
	default:
		return r.String()
	}
}

// Valid returns true if r is one of the defined roles.
func (r Role) Valid() bool {
	return r >= RoleUnauthenticated && r <= RoleAdmin
}

// ParseRole returns the role for a name. Accepts the String() form.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unauthenticated", "anonymous":
		return RoleUnauthenticated, nil
	case "team":
		return RoleTeam, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, Errorf(EINVALID, "Unknown role: %q.", s)
	}
}

// Client-side storage keys read by the application to determine the role.
const (
	TeamStorageKey  = "bingo.team"
	RoomStorageKey  = "bingo.room"
	AdminStorageKey = "bingo.admin"
)

// Team is the team record stored under TeamStorageKey.
type Team struct {
	ID       string `json:"id"`
	TeamName string `json:"team_name"`
}

// Room is the room record stored under RoomStorageKey.
type Room struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Identity holds the records written to storage when a session logs in.
type Identity struct {
	Team Team
	Room Room
}

// DefaultIdentity returns the test team & room used by the default suite.
func DefaultIdentity() Identity {
	return Identity{
		Team: Team{ID: "test-team", TeamName: "Test Team"},
		Room: Room{Code: "TEST", Title: "Test Room"},
	}
}

// Validate returns an error if the identity would not be accepted by the
// application as a logged in team.
func (i *Identity) Validate() error {
	if i.Team.ID == "" {
		return Errorf(EINVALID, "Team ID required.")
	} else if i.Room.Code == "" {
		return Errorf(EINVALID, "Room code required.")
	}
	return nil
}

// StorageItem is a single localStorage key/value pair.
type StorageItem struct {
	Key   string
	Value string
}

// Transition returns the storage writes that move a session from one role to
// another. Roles are additive: the admin transition only adds the admin flag
// and keeps the team & room records from the team transition. Moving down the
// role order is not supported and returns EINVALID.
//
// Returns no items if from and to are equal.
func Transition(from, to Role, ident Identity) ([]StorageItem, error) {
	if !from.Valid() || !to.Valid() {
		return nil, Errorf(EINVALID, "Invalid role transition: %s to %s.", from, to)
	} else if to < from {
		return nil, Errorf(EINVALID, "Cannot transition from %s to %s; roles are additive.", from, to)
	}

	var items []StorageItem
	if from < RoleTeam && to >= RoleTeam {
		if err := ident.Validate(); err != nil {
			return nil, err
		}

		team, err := json.Marshal(ident.Team)
		if err != nil {
			return nil, err
		}
		room, err := json.Marshal(ident.Room)
		if err != nil {
			return nil, err
		}
		items = append(items,
			StorageItem{Key: TeamStorageKey, Value: string(team)},
			StorageItem{Key: RoomStorageKey, Value: string(room)},
		)
	}

	if from < RoleAdmin && to >= RoleAdmin {
		items = append(items, StorageItem{Key: AdminStorageKey, Value: "true"})
	}

	return items, nil
}

// StorageScript returns a script that writes items to localStorage when
// evaluated in page context. The script evaluates to true on success.
func StorageScript(items []StorageItem) (string, error) {
	var buf strings.Builder
	for _, item := range items {
		key, err := json.Marshal(item.Key)
		if err != nil {
			return "", err
		}
		value, err := json.Marshal(item.Value)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&buf, "localStorage.setItem(%s, %s);\n", key, value)
	}
	buf.WriteString("true")
	return buf.String(), nil
}
