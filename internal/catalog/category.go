package catalog

// InteractionKind names the kind of human involvement a category needs.
type InteractionKind string

const (
	InteractionSelection    InteractionKind = "selection"    // user clicks or picks a target
	InteractionConfirmation InteractionKind = "confirmation" // user confirms a dialog
)

// Valid reports whether k is a recognized interaction kind.
func (k InteractionKind) Valid() bool {
	return k == InteractionSelection || k == InteractionConfirmation
}

// Exception is a literal (service, method) pair that belongs to a category
// even though no pattern of the category matches the method name.
type Exception struct {
	Service string `yaml:"service" json:"service"`
	Method  string `yaml:"method" json:"method"`
}

// Category is a named class of bus operations sharing a required tier.
// Categories are immutable once a Catalog has been built from them.
type Category struct {
	Name                string          `yaml:"name" json:"name"`
	Description         string          `yaml:"description" json:"description"`
	Patterns            []string        `yaml:"patterns" json:"patterns"`
	Exceptions          []Exception     `yaml:"exceptions,omitempty" json:"exceptions,omitempty"`
	Tier                Level           `yaml:"tier" json:"tier"`
	Forbidden           bool            `yaml:"forbidden,omitempty" json:"forbidden,omitempty"`
	RequiresInteraction bool            `yaml:"requires_interaction,omitempty" json:"requires_interaction,omitempty"`
	Interaction         InteractionKind `yaml:"interaction,omitempty" json:"interaction,omitempty"`
}
