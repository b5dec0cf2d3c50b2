package sources

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fbz-tec/pgxserve/core/config"
	"github.com/fbz-tec/pgxserve/core/db"
)

// Factory builds a Source from the process configuration. store is nil
// unless the source needs a native connection.
type Factory func(cfg config.Config, store db.Store) (Source, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, exists := registry[name]; exists {
		return fmt.Errorf("source: %q already registered", name)
	}
	registry[name] = factory
	return nil
}

func Get(name string, cfg config.Config, store db.Store) (Source, error) {
	factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported source: %q (available: %s)",
			name, strings.Join(List(), ", "))
	}
	return factory(cfg, store)
}

func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// NeedsStore reports whether the named source queries through db.Store.
func NeedsStore(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), config.SourceCopy)
}
