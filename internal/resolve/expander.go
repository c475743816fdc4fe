package resolve

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmllr/alertchain/internal/logger"
	"github.com/jmllr/alertchain/internal/models"
)

// SymbolSource maps a symbol-group tag to the symbols it currently contains.
type SymbolSource interface {
	Members(tag string) ([]string, error)
}

// StaticSource serves symbol groups from a fixed configuration map.
type StaticSource struct {
	groups map[string][]string
}

func NewStaticSource(groups map[string][]string) *StaticSource {
	return &StaticSource{groups: groups}
}

func (s *StaticSource) Members(tag string) ([]string, error) {
	members, ok := s.groups[tag]
	if !ok {
		return nil, fmt.Errorf("unknown symbol group %q", tag)
	}
	return members, nil
}

type expandEntry struct {
	symbols   []string
	err       error
	expiresAt time.Time
}

// Expander resolves a group's symbol set: explicit symbols plus expanded
// symbol-group members, deduplicated while keeping first-seen order. Group
// expansions are cached for a short TTL so one run hits the source at most
// once per tag.
type Expander struct {
	source SymbolSource
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]expandEntry
	now   func() time.Time
}

func NewExpander(source SymbolSource, ttl time.Duration) *Expander {
	return &Expander{
		source: source,
		ttl:    ttl,
		cache:  make(map[string]expandEntry),
		now:    time.Now,
	}
}

// Symbols returns the evaluation symbol list for a group. An empty final set
// is an error: a group with nothing to evaluate is a configuration problem,
// not a silent no-op.
func (e *Expander) Symbols(group *models.Group) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(sym string) {
		sym = strings.TrimSpace(sym)
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true
		out = append(out, sym)
	}

	for _, sym := range group.Symbols {
		add(sym)
	}

	if tag := strings.TrimSpace(group.SymbolGroup); tag != "" {
		members, err := e.expand(tag)
		if err != nil {
			return nil, fmt.Errorf("expand symbol group %q: %w", tag, err)
		}
		for _, sym := range members {
			add(sym)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("group %s resolves to an empty symbol set", group.GID)
	}
	return out, nil
}

func (e *Expander) expand(tag string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.cache[tag]; ok && e.now().Before(entry.expiresAt) {
		return entry.symbols, entry.err
	}

	symbols, err := e.source.Members(tag)
	if err != nil {
		logger.Warn("symbol group expansion failed: tag=%s err=%v", tag, err)
	}
	e.cache[tag] = expandEntry{symbols: symbols, err: err, expiresAt: e.now().Add(e.ttl)}
	return symbols, err
}

// CanonicalTags returns the sorted unique symbol-group tags referenced by the
// given profiles, for logging and warm-up.
func CanonicalTags(profiles []models.Profile) []string {
	seen := make(map[string]bool)
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		for _, g := range p.Groups {
			if !g.Enabled {
				continue
			}
			if tag := strings.TrimSpace(g.SymbolGroup); tag != "" {
				seen[tag] = true
			}
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
