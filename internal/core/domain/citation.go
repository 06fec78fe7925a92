package domain

// Citation is the slice of a provider record the orchestration core cares
// about. Full field semantics belong to the citation manager.
type Citation struct {
	Key      string            `json:"key"`
	Title    string            `json:"title"`
	Creators []string          `json:"creators"`
	Date     string            `json:"date"`
	ItemType string            `json:"item_type"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// URL returns the record's url field, if any.
func (c *Citation) URL() string {
	return c.Fields["url"]
}
