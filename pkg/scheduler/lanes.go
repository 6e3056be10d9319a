package scheduler

import (
	"github.com/psilva81/inferq/pkg/models"
)

// laneSet holds the four strict-priority FIFO lanes. It is not safe for
// concurrent use; callers hold the scheduler lock.
type laneSet struct {
	lanes map[models.Priority][]*models.AnalysisRequest
}

func newLaneSet() *laneSet {
	ls := &laneSet{lanes: make(map[models.Priority][]*models.AnalysisRequest, len(models.Priorities))}
	for _, p := range models.Priorities {
		ls.lanes[p] = nil
	}
	return ls
}

// push appends the request to the back of its priority lane.
func (ls *laneSet) push(req *models.AnalysisRequest) {
	ls.lanes[req.Priority] = append(ls.lanes[req.Priority], req)
}

// pushFront returns a request to the head of its lane, preserving FIFO order
// after a dispatch attempt was backed out.
func (ls *laneSet) pushFront(req *models.AnalysisRequest) {
	lane := ls.lanes[req.Priority]
	ls.lanes[req.Priority] = append([]*models.AnalysisRequest{req}, lane...)
}

// popHighest removes and returns the head of the highest non-empty lane,
// or nil when every lane is empty.
func (ls *laneSet) popHighest() *models.AnalysisRequest {
	for i := len(models.Priorities) - 1; i >= 0; i-- {
		p := models.Priorities[i]
		lane := ls.lanes[p]
		if len(lane) == 0 {
			continue
		}
		req := lane[0]
		ls.lanes[p] = lane[1:]
		return req
	}
	return nil
}

// find returns the queued request with the given id, or nil.
func (ls *laneSet) find(id string) *models.AnalysisRequest {
	for _, p := range models.Priorities {
		for _, req := range ls.lanes[p] {
			if req.ID == id {
				return req
			}
		}
	}
	return nil
}

// remove takes the request with the given id out of its lane and returns it,
// or nil when it is not queued.
func (ls *laneSet) remove(id string) *models.AnalysisRequest {
	for _, p := range models.Priorities {
		lane := ls.lanes[p]
		for i, req := range lane {
			if req.ID == id {
				ls.lanes[p] = append(lane[:i:i], lane[i+1:]...)
				return req
			}
		}
	}
	return nil
}

// size returns the total number of queued requests across all lanes.
func (ls *laneSet) size() int {
	n := 0
	for _, p := range models.Priorities {
		n += len(ls.lanes[p])
	}
	return n
}

// depths returns the per-lane queue sizes.
func (ls *laneSet) depths() map[models.Priority]int {
	d := make(map[models.Priority]int, len(models.Priorities))
	for _, p := range models.Priorities {
		d[p] = len(ls.lanes[p])
	}
	return d
}

// drain empties every lane and returns the requests highest tier first,
// FIFO within each tier.
func (ls *laneSet) drain() []*models.AnalysisRequest {
	var out []*models.AnalysisRequest
	for i := len(models.Priorities) - 1; i >= 0; i-- {
		p := models.Priorities[i]
		out = append(out, ls.lanes[p]...)
		ls.lanes[p] = nil
	}
	return out
}
