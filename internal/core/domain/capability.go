package domain

// Capability is a derived view of which resolution stages are currently
// viable for an item. It is recomputed on demand and never persisted.
type Capability struct {
	HasIdentifiers        bool
	HasWebTranslators     bool
	HasContent            bool
	IsAccessible          bool
	CanUseAIExtraction    bool
	IsPDF                 bool
	ManualCreateAvailable bool
}
