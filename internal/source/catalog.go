package source

// StaticCatalog serves a fixed channel list, used when channels come from
// configuration rather than source discovery.
type StaticCatalog []string

// Channels implements Catalog.
func (c StaticCatalog) Channels() ([]string, error) {
	return []string(c), nil
}
