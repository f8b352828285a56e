package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/graymesh/zigbee-core/internal/bridges/zigbee"
)

// CoordinatorSummary is the list view of one coordinator.
type CoordinatorSummary struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	RootTopic  string         `json:"root_topic"`
	QueueDepth int            `json:"queue_depth"`
	Mesh       map[string]int `json:"mesh"`
}

// MeshNode is the JSON view of one node in a coordinator's mesh.
type MeshNode struct {
	IEEE         string   `json:"ieee"`
	FriendlyName string   `json:"friendly_name"`
	Type         string   `json:"type"`
	Model        string   `json:"model,omitempty"`
	Vendor       string   `json:"vendor,omitempty"`
	Disabled     bool     `json:"disabled,omitempty"`
	Properties   []string `json:"properties,omitempty"`
	DeviceID     int      `json:"device_id,omitempty"`
}

// MeshGroupView is the JSON view of one zigbee2mqtt group.
type MeshGroupView struct {
	ID           int      `json:"id"`
	FriendlyName string   `json:"friendly_name"`
	Members      []string `json:"members,omitempty"`
	DeviceID     int      `json:"device_id,omitempty"`
}

// handleListCoordinators returns a summary of every configured coordinator.
func (s *Server) handleListCoordinators(w http.ResponseWriter, r *http.Request) {
	summaries := make([]CoordinatorSummary, 0, len(s.coordinators))
	for _, c := range s.coordinators {
		summaries = append(summaries, coordinatorSummary(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coordinators": summaries,
		"count":        len(summaries),
	})
}

// handleGetCoordinator returns the summary of one coordinator.
func (s *Server) handleGetCoordinator(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinatorParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, coordinatorSummary(c))
}

// handleCoordinatorMesh returns the live mesh picture for one coordinator.
func (s *Server) handleCoordinatorMesh(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinatorParam(w, r)
	if !ok {
		return
	}

	topo := c.Mesh.Topology()
	devices := topo.Devices()
	nodes := make([]MeshNode, 0, len(devices))
	for _, d := range devices {
		nodes = append(nodes, meshNode(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coordinator_ieee": topo.CoordinatorIEEE(),
		"devices":          nodes,
		"count":            len(nodes),
	})
}

// handleCoordinatorGroups returns the groups known on one coordinator.
func (s *Server) handleCoordinatorGroups(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinatorParam(w, r)
	if !ok {
		return
	}

	groups := c.Mesh.Topology().Groups()
	views := make([]MeshGroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, MeshGroupView{
			ID:           g.ID,
			FriendlyName: g.FriendlyName,
			Members:      g.Members,
			DeviceID:     g.DeviceID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": views,
		"count":  len(views),
	})
}

// coordinatorParam resolves the {id} URL parameter to a configured
// coordinator, writing a 400 or 404 on failure.
func (s *Server) coordinatorParam(w http.ResponseWriter, r *http.Request) (Coordinator, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeBadRequest(w, "coordinator id must be a positive integer")
		return Coordinator{}, false
	}
	for _, c := range s.coordinators {
		if c.Config.ID == id {
			return c, true
		}
	}
	writeNotFound(w, "coordinator not found")
	return Coordinator{}, false
}

func coordinatorSummary(c Coordinator) CoordinatorSummary {
	return CoordinatorSummary{
		ID:         c.Config.ID,
		Name:       c.Config.Name,
		RootTopic:  c.Config.RootTopic,
		QueueDepth: c.Mesh.QueueDepth(),
		Mesh:       c.Mesh.Topology().Stats(),
	}
}

func meshNode(d zigbee.MeshDevice) MeshNode {
	return MeshNode{
		IEEE:         d.IEEE,
		FriendlyName: d.FriendlyName,
		Type:         d.Type,
		Model:        d.Model,
		Vendor:       d.Vendor,
		Disabled:     d.Disabled,
		Properties:   d.Properties,
		DeviceID:     d.DeviceID,
	}
}
