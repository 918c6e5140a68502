package pokeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"unicode"
	"unicode/utf8"

	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
)

type namedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type pagedResponse struct {
	Count   int             `json:"count"`
	Results []namedResource `json:"results"`
}

// detailResponse covers the detail shapes of the categories we browse: moves
// carry a single type and optional power/accuracy, creatures a list of types,
// abilities neither.
type detailResponse struct {
	Name     string         `json:"name"`
	Type     *namedResource `json:"type"`
	Types    []typeSlot     `json:"types"`
	Power    *int           `json:"power"`
	Accuracy *int           `json:"accuracy"`
}

type typeSlot struct {
	Slot int           `json:"slot"`
	Type namedResource `json:"type"`
}

func parseListing(category string, status int, body []byte) ([]models.ResourceReference, error) {
	if status != http.StatusOK {
		return nil, providers.NewListingError(statusCategory(status), category, fmt.Sprintf("unexpected status %d", status), nil)
	}
	var page pagedResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, providers.NewListingError(providers.ErrorBadData, category, "decode listing", err)
	}
	if page.Results == nil {
		return nil, providers.NewListingError(providers.ErrorBadData, category, "listing has no results field", nil)
	}

	refs := make([]models.ResourceReference, 0, len(page.Results))
	for _, r := range page.Results {
		if r.URL == "" {
			continue
		}
		refs = append(refs, models.ResourceReference{Name: r.Name, Locator: r.URL})
	}
	return refs, nil
}

func parseDetail(locator string, status int, body []byte) (models.DetailRecord, error) {
	if status != http.StatusOK {
		return models.DetailRecord{}, providers.NewFetchFailure(statusCategory(status), locator, fmt.Sprintf("unexpected status %d", status), nil)
	}
	var d detailResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return models.DetailRecord{}, providers.NewFetchFailure(providers.ErrorBadData, locator, "decode detail", err)
	}
	if d.Name == "" {
		return models.DetailRecord{}, providers.NewFetchFailure(providers.ErrorBadData, locator, "detail has no name", nil)
	}

	return models.DetailRecord{
		ID:       models.LocatorID(locator),
		Name:     capitalize(d.Name),
		Category: capitalize(d.category()),
		Power:    models.OptionalFromPtr(d.Power),
		Accuracy: models.OptionalFromPtr(d.Accuracy),
	}, nil
}

func (d detailResponse) category() string {
	if d.Type != nil {
		return d.Type.Name
	}
	best := -1
	name := ""
	for _, t := range d.Types {
		if best == -1 || t.Slot < best {
			best = t.Slot
			name = t.Type.Name
		}
	}
	return name
}

// capitalize upper-cases the first rune only: "double-edge" -> "Double-edge".
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToTitle(r)) + s[size:]
}
