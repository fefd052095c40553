// Villager spawning: names, personalities and ids.
package npc

import (
	"math/rand"

	"github.com/talgya/village-mind/internal/world"
)

// Spawner creates villagers for the town. It owns the id sequence so ids are
// never reused, even after a villager is removed.
type Spawner struct {
	rng    *rand.Rand
	nextID EntityID
}

// NewSpawner creates a villager spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 500)),
		nextID: 1,
	}
}

// SetNextID sets the next id to be issued (used when restoring from an archive).
func (s *Spawner) SetNextID(id EntityID) {
	if id < 1 {
		id = 1
	}
	s.nextID = id
}

// NextID returns the id the next spawn will receive.
func (s *Spawner) NextID() EntityID {
	return s.nextID
}

// Spawn creates one villager at pos. A nil personality draws a random one.
func (s *Spawner) Spawn(pos world.Vec2, p *Personality, tick uint64) *Entity {
	id := s.nextID
	s.nextID++

	var traits Personality
	if p != nil {
		traits = NewPersonality(p.Openness, p.Sociability, p.Agreeableness, p.Curiosity, p.Suspicion)
	} else {
		traits = RandomPersonality(s.rng)
	}

	e := NewEntity(id, s.generateName(), pos, traits)
	e.SpawnTick = tick

	// Needs: mostly met at spawn, with a little variety.
	e.Needs = Needs{
		Belonging: 0.5 + s.rng.Float64()*0.3,
		Novelty:   0.5 + s.rng.Float64()*0.3,
		Purpose:   0.5 + s.rng.Float64()*0.3,
	}
	return e
}

func (s *Spawner) generateName() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

var firstNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Jasper", "Kael", "Leif", "Nils", "Oswin", "Quinn",
	"Rowan", "Theron", "Wren", "Yorick", "Astrid", "Brenna", "Calla",
	"Daria", "Elara", "Freya", "Greta", "Iris", "Juno", "Kira",
	"Lena", "Mira", "Nessa", "Petra", "Runa", "Thea", "Vera", "Yara",
}

var lastNames = []string{
	"Voss", "Thornwood", "Ashford", "Dunmore", "Greenvale", "Hearthstone",
	"Millward", "Copperfield", "Silverdale", "Deepwell", "Brightwater",
	"Windholm", "Marshwood", "Riverstone", "Holloway", "Dawnridge",
	"Farrow", "Thatcher",
}
