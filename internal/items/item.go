package items

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Trait is a string property shown on the item page.
type Trait struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Stat is a numeric level or stat with its maximum.
type Stat struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Max   int    `json:"max"`
}

// Durations lists the listing durations the sale form offers.
var Durations = []string{"1 day", "3 days", "7 days", "1 month", "3 months", "6 months"}

const defaultDuration = "1 month"

// WorkItem is one record of the data file. Index is stable for the life of
// a run. Items are values: stages receive copies and never mutate the
// source.
type WorkItem struct {
	Index   int
	Valid   bool
	Problem string

	FilePath          string
	Name              string
	ExternalLink      string
	Description       string
	Collection        string
	Properties        []Trait
	Levels            []Stat
	Stats             []Stat
	UnlockableContent string
	Sensitive         bool
	Supply            int

	Chain         Chain
	Price         string
	Quantity      int
	Duration      string
	SpecificBuyer string

	// URL is the item page on the marketplace. Sale-only and delete runs
	// read it from the data file; upload fills it for the sale stage.
	URL string
}

// WithURL returns a copy of the item pointing at url.
func (w WorkItem) WithURL(url string) WorkItem {
	w.URL = url
	return w
}

// Label is a short human description for logs and progress lines.
func (w WorkItem) Label() string {
	if w.Name != "" {
		return w.Name
	}
	if w.URL != "" {
		return w.URL
	}
	return fmt.Sprintf("item %d", w.Index+1)
}

// Validate checks the fields each selected stage needs.
func (w WorkItem) Validate(actions ActionSet) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if actions.Has(StageUpload) {
		if strings.TrimSpace(w.FilePath) == "" {
			add("file_path is required for upload")
		}
		if strings.TrimSpace(w.Name) == "" {
			add("name is required for upload")
		}
		if w.Supply < 1 {
			add("supply must be at least 1")
		}
		for i, p := range w.Properties {
			if p.Type == "" || p.Name == "" {
				add("properties[%d] needs type and name", i)
			}
		}
		for _, group := range []struct {
			field string
			stats []Stat
		}{{"levels", w.Levels}, {"stats", w.Stats}} {
			for i, s := range group.stats {
				if s.Name == "" || s.Max < 1 || s.Value < 0 || s.Value > s.Max {
					add("%s[%d] needs a name and 0 <= value <= max", group.field, i)
				}
			}
		}
	}

	if actions.Has(StageSale) {
		if w.Chain == "" {
			add("blockchain is required for sale")
		}
		if strings.TrimSpace(w.Price) == "" {
			add("price is required for sale")
		}
		if w.Quantity < 1 {
			add("quantity must be at least 1")
		}
		if !validDuration(w.Duration) {
			add("duration %q is not one of %s", w.Duration, strings.Join(Durations, ", "))
		}
		if w.SpecificBuyer != "" && !common.IsHexAddress(w.SpecificBuyer) {
			add("specific_buyer %q is not a wallet address", w.SpecificBuyer)
		}
		if !actions.Has(StageUpload) && strings.TrimSpace(w.URL) == "" {
			add("url is required to sell an existing item")
		}
	}

	if actions.Has(StageDelete) && strings.TrimSpace(w.URL) == "" {
		add("url is required for delete")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func validDuration(d string) bool {
	for _, v := range Durations {
		if v == d {
			return true
		}
	}
	return false
}
