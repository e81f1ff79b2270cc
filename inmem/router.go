package inmem

import (
	"encoding/json"
	"strings"

	"github.com/codebingo/routecheck"
)

// Router reproduces the client-side route guards of the bingo application.
// It is used as a stand-in for the real application when testing the
// verifier without a browser.
type Router struct{}

// NewRouter returns a new instance of Router.
func NewRouter() *Router {
	return &Router{}
}

// Resolve returns the path & query the application settles on after loading
// target with the given localStorage contents. Redirects drop the query string.
func (r *Router) Resolve(target string, storage map[string]string) string {
	path := target
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		path = "/"
	}

	admin := storage[routecheck.AdminStorageKey] == "true"
	team := hasTeam(storage)

	switch path {
	case "/":
		if admin {
			return "/admin"
		} else if team {
			return "/game"
		}
	case "/admin":
		if admin {
			return target
		} else if team {
			return "/game"
		}
		return "/"
	case "/game":
		if admin {
			return "/admin"
		} else if !team {
			return "/"
		}
	case "/congratulations":
		if !team {
			return "/"
		}
	}

	// Public & unknown routes are never redirected.
	return target
}

// hasTeam returns true if storage holds a team with an ID and a room with a code.
func hasTeam(storage map[string]string) bool {
	var team struct {
		ID     string `json:"id"`
		TeamID string `json:"team_id"`
	}
	var room struct {
		Code string `json:"code"`
	}

	if !parseRecord(storage[routecheck.TeamStorageKey], &team) {
		return false
	} else if !parseRecord(storage[routecheck.RoomStorageKey], &room) {
		return false
	}
	return (team.ID != "" || team.TeamID != "") && room.Code != ""
}

// parseRecord decodes a JSON object stored in localStorage. Missing values and
// the "undefined" & "null" strings are treated as absent.
func parseRecord(raw string, v interface{}) bool {
	switch raw {
	case "", "undefined", "null":
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}
