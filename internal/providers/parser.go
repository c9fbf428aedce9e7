package providers

import "strings"

// ProviderRef is one "name[:alias]" entry of a provider list. Name is
// lowercased; KeyAlias selects an alternate API key or model.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList splits a "|"-separated provider list in order. Blank
// entries and entries without a name are skipped; nothing usable means mock.
func ParseProviderList(raw string) []ProviderRef {
	var out []ProviderRef
	for _, entry := range strings.Split(raw, "|") {
		entry = strings.TrimSpace(entry)
		name, alias, _ := strings.Cut(entry, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		out = append(out, ProviderRef{Raw: entry, Name: name, KeyAlias: strings.TrimSpace(alias)})
	}
	if len(out) == 0 {
		return []ProviderRef{{Raw: "mock", Name: "mock"}}
	}
	return out
}
