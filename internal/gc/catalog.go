package gc

// Catalog is an insertion-ordered set of compound names.
type Catalog struct {
	names []string
	index map[string]struct{}
}

// NewCatalog returns a catalog seeded with names in order.
func NewCatalog(names ...string) *Catalog {
	c := &Catalog{index: make(map[string]struct{}, len(names))}
	for _, n := range names {
		c.Add(n)
	}
	return c
}

// Add inserts name if it has not been seen and reports whether it was new.
func (c *Catalog) Add(name string) bool {
	if c.index == nil {
		c.index = make(map[string]struct{})
	}
	if _, ok := c.index[name]; ok {
		return false
	}
	c.index[name] = struct{}{}
	c.names = append(c.names, name)
	return true
}

func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

func (c *Catalog) Len() int { return len(c.names) }

// Names returns a copy of the names in first-seen order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
