package perspective

import "fmt"

// Model is one scoring dimension offered by the comment analyzer service.
// The value of each constant is the canonical uppercase wire name used in
// requests and responses.
type Model string

const (
	ModelToxicity          Model = "TOXICITY"
	ModelSevereToxicity    Model = "SEVERE_TOXICITY"
	ModelToxicityFast      Model = "TOXICITY_FAST"
	ModelSpam              Model = "SPAM"
	ModelObscene           Model = "OBSCENE"
	ModelIncoherent        Model = "INCOHERENT"
	ModelInflammatory      Model = "INFLAMMATORY"
	ModelLikelyToReject    Model = "LIKELY_TO_REJECT"
	ModelAttackOnAuthor    Model = "ATTACK_ON_AUTHOR"
	ModelAttackOnCommenter Model = "ATTACK_ON_COMMENTER"
	ModelUnsubstantial     Model = "UNSUBSTANTIAL"
)

// catalog fixes the declaration order. Filter evaluation and Describe output
// follow this order, which makes tie-breaks between equal scores reproducible.
var catalog = []Model{
	ModelToxicity,
	ModelSevereToxicity,
	ModelToxicityFast,
	ModelSpam,
	ModelObscene,
	ModelIncoherent,
	ModelInflammatory,
	ModelLikelyToReject,
	ModelAttackOnAuthor,
	ModelAttackOnCommenter,
	ModelUnsubstantial,
}

var catalogSet = func() map[Model]struct{} {
	set := make(map[Model]struct{}, len(catalog))
	for _, m := range catalog {
		set[m] = struct{}{}
	}
	return set
}()

// Catalog returns every supported model in declaration order. The returned
// slice is a copy and safe to reorder.
func Catalog() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}

// Valid reports whether m belongs to the closed model catalog.
func (m Model) Valid() bool {
	_, ok := catalogSet[m]
	return ok
}

// WireName returns the canonical wire identifier for m. A value outside the
// catalog is a programming or configuration error and fails loudly.
func (m Model) WireName() (string, error) {
	if !m.Valid() {
		return "", fmt.Errorf("invalid model: %q", string(m))
	}
	return string(m), nil
}

// FromWireName resolves a canonical wire name back to its Model.
func FromWireName(name string) (Model, error) {
	m := Model(name)
	if !m.Valid() {
		return "", fmt.Errorf("invalid model: %q", name)
	}
	return m, nil
}
