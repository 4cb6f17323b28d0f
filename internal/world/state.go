package world

import "sort"

// BeingType classifies a being by the server's job id range.
type BeingType int

const (
	BeingUnknown BeingType = iota
	BeingPlayer
	BeingNPC
	BeingMonster
	BeingPortal
)

func (t BeingType) String() string {
	switch t {
	case BeingPlayer:
		return "player"
	case BeingNPC:
		return "npc"
	case BeingMonster:
		return "monster"
	case BeingPortal:
		return "portal"
	default:
		return "unknown"
	}
}

// TypeFromJob follows the eAthena job id ranges.
func TypeFromJob(job uint16) BeingType {
	switch {
	case job <= 25 || (job >= 4001 && job <= 4049):
		return BeingPlayer
	case job == 45:
		return BeingPortal
	case job >= 46 && job <= 1000:
		return BeingNPC
	case job > 1000 && job <= 2000:
		return BeingMonster
	default:
		return BeingUnknown
	}
}

// Being is one entity the server has told us about.
type Being struct {
	ID     int32
	Type   BeingType
	Job    uint16
	Name   string
	X, Y   uint16
	Dir    uint8
	DestX  uint16
	DestY  uint16
	Speed  uint16
	Gender uint8
}

// State is what the client knows of the current map. Main loop only.
type State struct {
	Map      string
	PlayerID int32

	beings map[int32]*Being
	grid   *AOIGrid
}

func NewState() *State {
	return &State{
		beings: make(map[int32]*Being),
		grid:   NewAOIGrid(),
	}
}

// Upsert records b, keeping a previously learned name when b has none.
func (s *State) Upsert(b Being) *Being {
	if cur, ok := s.beings[b.ID]; ok {
		if b.Name == "" {
			b.Name = cur.Name
		}
		s.grid.Move(b.ID, int32(cur.X), int32(cur.Y), int32(b.X), int32(b.Y))
		*cur = b
		return cur
	}
	nb := b
	s.beings[b.ID] = &nb
	s.grid.Add(b.ID, int32(b.X), int32(b.Y))
	return &nb
}

// MoveTo updates the position of a known being. Unknown ids are ignored.
func (s *State) MoveTo(id int32, x, y uint16) (*Being, bool) {
	b, ok := s.beings[id]
	if !ok {
		return nil, false
	}
	s.grid.Move(id, int32(b.X), int32(b.Y), int32(x), int32(y))
	b.X, b.Y = x, y
	b.DestX, b.DestY = x, y
	return b, true
}

func (s *State) Get(id int32) (*Being, bool) {
	b, ok := s.beings[id]
	return b, ok
}

// Remove forgets a being and reports whether it was known.
func (s *State) Remove(id int32) bool {
	b, ok := s.beings[id]
	if !ok {
		return false
	}
	s.grid.Remove(id, int32(b.X), int32(b.Y))
	delete(s.beings, id)
	return true
}

func (s *State) Len() int { return len(s.beings) }

// Nearby returns beings within Chebyshev distance r of (x, y), sorted by
// id. r is capped at the grid's cell size.
func (s *State) Nearby(x, y uint16, r int) []*Being {
	if r > cellSize {
		r = cellSize
	}
	var out []*Being
	for _, id := range s.grid.Candidates(int32(x), int32(y)) {
		b := s.beings[id]
		dx := int(b.X) - int(x)
		dy := int(b.Y) - int(y)
		if dx < 0 {
			dx = -dx
		}
		if dy < 0 {
			dy = -dy
		}
		if dx <= r && dy <= r {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Player returns the local player's being, if the server has shown it.
func (s *State) Player() (*Being, bool) {
	return s.Get(s.PlayerID)
}

// ChangeMap forgets every being except the local player.
func (s *State) ChangeMap(name string) {
	s.Map = name
	player, ok := s.beings[s.PlayerID]
	clear(s.beings)
	s.grid.Clear()
	if ok {
		s.beings[player.ID] = player
		s.grid.Add(player.ID, int32(player.X), int32(player.Y))
	}
}

// Reset clears everything, including the player id.
func (s *State) Reset() {
	s.Map = ""
	s.PlayerID = 0
	clear(s.beings)
	s.grid.Clear()
}
