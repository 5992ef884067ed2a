// ABOUTME: Composite catalog chaining multiple source catalogs.
// ABOUTME: Dispatch resolves names against sources in registration order; first match wins.

package catalog

// Composite chains source catalogs. Lookup tries each source in registration
// order and uses the first that recognizes the name; when two sources
// advertise the same name, the earlier source shadows the later one.
type Composite struct {
	sources []Catalog
}

// Compose builds a composite over the given sources, in order.
func Compose(sources ...Catalog) *Composite {
	return &Composite{sources: sources}
}

// Definitions returns the advertised definitions across all sources,
// shadowed names excluded.
func (c *Composite) Definitions() []Definition {
	seen := make(map[string]struct{})
	var defs []Definition
	for _, src := range c.sources {
		for _, def := range src.Definitions() {
			if _, dup := seen[def.Name]; dup {
				continue
			}
			seen[def.Name] = struct{}{}
			defs = append(defs, def)
		}
	}
	return defs
}

// Lookup resolves a name against sources in order.
func (c *Composite) Lookup(name string) (Executor, bool) {
	for _, src := range c.sources {
		if exec, ok := src.Lookup(name); ok {
			return exec, true
		}
	}
	return nil, false
}

// Names returns every known tool name across all sources, in source order,
// deduplicated.
func (c *Composite) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, src := range c.sources {
		for _, name := range src.Names() {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
