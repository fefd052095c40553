package dialogue

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/talgya/village-mind/internal/phi"
)

// TemplateProvider builds lines from fixed phrase tables. Output depends
// only on the request, so runs with the same seed say the same things.
type TemplateProvider struct{}

// NewTemplateProvider returns the local provider.
func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{}
}

// Inline marks the provider as safe to run inside a tick.
func (*TemplateProvider) Inline() bool { return true }

var (
	warmLines = []string{
		"Good to see you, %s. The bread smells fine today.",
		"%s! I was hoping we'd cross paths.",
		"Walk with me a while, %s?",
		"You always know what to say, %s.",
	}
	plainLines = []string{
		"Morning, %s.",
		"Busy day, %s?",
		"The square's quiet, isn't it, %s?",
		"Have you heard about the well, %s?",
	}
	coldLines = []string{
		"What do you want, %s?",
		"Not now, %s.",
		"I haven't forgotten, %s.",
		"Keep your voice down, %s.",
	}
	metaLines = []string{
		"Have you noticed, %s, that the same cart passes every hour?",
		"%s, do you ever feel like someone is watching the whole town?",
		"Count the birds, %s. It's always the same number.",
		"The edge of the map, %s. Have you ever walked to it?",
	}
)

// Generate implements Provider.
func (p *TemplateProvider) Generate(ctx context.Context, req Request) (Utterance, error) {
	if err := ctx.Err(); err != nil {
		return Utterance{}, err
	}

	h := requestHash(req)
	mood := req.Context.Relationship.Affinity + 0.5*req.Speaker.Mood.Valence
	for _, m := range req.Context.SpeakerMemories {
		mood += m.Valence * m.Importance * 0.5
	}
	jitter := float64(h%1000)/1000*phi.Agnosis - phi.Agnosis/2
	valence := phi.Clamp(mood+jitter, -1, 1)

	listener := firstName(req.Listener.Name)
	if hintsAtSimulation(req) {
		line := metaLines[(h>>8)%uint64(len(metaLines))]
		return Utterance{Text: fmt.Sprintf(line, listener), Valence: valence, Meta: true}, nil
	}

	table := plainLines
	switch {
	case valence > phi.Agnosis:
		table = warmLines
	case valence < -phi.Agnosis:
		table = coldLines
	}
	line := table[(h>>8)%uint64(len(table))]
	return Utterance{Text: fmt.Sprintf(line, listener), Valence: valence}, nil
}

// hintsAtSimulation reports whether an aware speaker lets this line hint at
// the simulation. About one line in three does, whichever provider speaks it.
func hintsAtSimulation(req Request) bool {
	return req.SpeakerAware && requestHash(req)%3 == 0
}

func requestHash(req Request) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range []uint64{req.Seed, uint64(req.Speaker.ID), uint64(req.Listener.ID), req.Tick} {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func firstName(name string) string {
	if name == "" {
		return "friend"
	}
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}
