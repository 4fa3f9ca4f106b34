package rooms

import (
	"net/http"
	"sort"

	"docsync-server/collab"
	"docsync-server/core"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// RoomSummary describes one document room. Users is the live member count on
// this instance; LastActive comes from the room registry, when known.
type RoomSummary struct {
	ID         string `json:"id"`
	Users      int    `json:"users"`
	LastActive *int64 `json:"lastActive,omitempty"`
}

// LiveRooms reports the rooms that currently have members.
type LiveRooms interface {
	Rooms() []collab.RoomStats
}

// HandleList merges live rooms with recorded activity, busiest rooms first.
// registry may be nil.
func HandleList(live LiveRooms, registry core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := make(map[string]*RoomSummary)
		for _, stats := range live.Rooms() {
			rooms[stats.ID] = &RoomSummary{ID: stats.ID, Users: stats.Members}
		}

		if registry != nil {
			if stored, err := registry.ListRooms(r.Context()); err != nil {
				logrus.WithError(err).Warn("failed to list rooms from registry")
			} else {
				for _, room := range stored {
					entry, ok := rooms[room.ID]
					if !ok {
						entry = &RoomSummary{ID: room.ID}
						rooms[room.ID] = entry
					}
					if room.LastActive > 0 {
						lastActive := room.LastActive
						entry.LastActive = &lastActive
					}
				}
			}
		}

		list := make([]RoomSummary, 0, len(rooms))
		for _, entry := range rooms {
			list = append(list, *entry)
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Users != list[j].Users {
				return list[i].Users > list[j].Users
			}
			li, lj := lastActive(list[i]), lastActive(list[j])
			if li == lj {
				return list[i].ID < list[j].ID
			}
			return li > lj
		})

		render.JSON(w, r, list)
	}
}

func lastActive(s RoomSummary) int64 {
	if s.LastActive == nil {
		return 0
	}
	return *s.LastActive
}
