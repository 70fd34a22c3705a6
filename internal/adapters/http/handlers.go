package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Parley/internal/adapters/api"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func channelMessages(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := domain.ChannelID(c.Param("id"))
		limit := 0
		if q := c.Query("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "bad limit"})
				return
			}
			limit = n
		}
		if limit == 0 || limit > maxBacklog {
			limit = maxBacklog
		}
		c.JSON(http.StatusOK, api.MessagesResponse{ChannelID: id, Messages: o.History.Recent(id, limit)})
	}
}

// serverMembers lists the users currently joined to the server room. Rooms
// exist only once somebody joined, so an unknown server has no members.
func serverMembers(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := domain.ServerID(c.Param("id"))
		members := []core.MemberDTO{}
		if room, ok := o.Rooms.GetRoom(domain.ServerRoom(id)); ok {
			members = room.MembersSnapshot()
		}
		for i := range members {
			members[i].Status = o.Registry.Status(members[i].ID)
		}
		c.JSON(http.StatusOK, api.MembersResponse{ServerID: id, Members: members})
	}
}

func listRooms(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, api.RoomsResponse{Rooms: o.Rooms.List()})
	}
}
