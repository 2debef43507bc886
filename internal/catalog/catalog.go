// Package catalog validates pool catalogs and prices selections against them.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/protocol"
)

type Result struct {
	OK      bool                  `json:"ok"`
	Errors  []protocol.FieldError `json:"errors"`
	Entries []model.CatalogEntry  `json:"entries"`
}

// NormalizePoolCatalog validates a decoded catalog (either {"entries":[...]}
// or a bare array). Entries holds the valid subset sorted by id, even when
// OK is false; the first occurrence of a duplicated id is kept.
func NormalizePoolCatalog(raw any) Result {
	res := Result{Errors: []protocol.FieldError{}, Entries: []model.CatalogEntry{}}

	items, ok := protocol.Array(raw)
	if !ok {
		obj, isObj := protocol.Object(raw)
		if isObj {
			items, ok = protocol.Array(obj["entries"])
		}
	}
	if !ok {
		res.Errors = append(res.Errors, protocol.FieldError{Field: "entries", Code: protocol.CodeInvalidEntry})
		return res
	}

	seen := map[string]bool{}
	entries := make([]model.CatalogEntry, 0, len(items))
	for i, item := range items {
		obj, ok := protocol.Object(item)
		if !ok {
			res.Errors = append(res.Errors, protocol.FieldError{Field: protocol.Field("entries", i, ""), Code: protocol.CodeInvalidEntry})
			continue
		}
		e, errs := normalizeEntry(i, obj)
		if e.ID != "" {
			if seen[e.ID] {
				errs = append(errs, protocol.FieldError{Field: protocol.Field("entries", i, "id"), Code: protocol.CodeDuplicateID})
			}
			seen[e.ID] = true
		}
		res.Errors = append(res.Errors, errs...)
		if len(errs) == 0 {
			entries = append(entries, e)
		}
	}

	res.OK = len(res.Errors) == 0
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	res.Entries = entries
	return res
}

func normalizeEntry(i int, obj map[string]any) (model.CatalogEntry, []protocol.FieldError) {
	var (
		e    model.CatalogEntry
		errs []protocol.FieldError
	)
	fail := func(field, code string) {
		errs = append(errs, protocol.FieldError{Field: protocol.Field("entries", i, field), Code: code})
	}

	if id, ok := protocol.String(obj["id"]); ok && strings.TrimSpace(id) != "" {
		e.ID = strings.TrimSpace(id)
	} else {
		fail("id", protocol.CodeInvalidID)
	}
	e.Type, _ = protocol.String(obj["type"])
	e.SubType, _ = protocol.String(obj["subType"])

	if m, ok := protocol.String(obj["motivation"]); ok && model.IsMotivation(m) {
		e.Motivation = m
	} else {
		fail("motivation", protocol.CodeInvalidMotivation)
	}
	if a, ok := protocol.String(obj["affinity"]); ok && model.IsAffinity(a) {
		e.Affinity = a
	} else {
		fail("affinity", protocol.CodeInvalidAffinity)
	}
	if c, ok := protocol.Number(obj["cost"]); ok && c > 0 {
		e.Cost = c
	} else {
		fail("cost", protocol.CodeInvalidCost)
	}
	return e, errs
}

// Catalog is a normalized pool catalog plus the digest of its source bytes.
type Catalog struct {
	Entries []model.CatalogEntry
	Digest  string
}

func New(entries []model.CatalogEntry) *Catalog {
	sorted := append([]model.CatalogEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	b, _ := json.Marshal(sorted)
	return &Catalog{Entries: sorted, Digest: sha256Hex(b)}
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("pool catalog: %w", err)
	}
	res := NormalizePoolCatalog(doc)
	if !res.OK {
		return nil, fmt.Errorf("pool catalog: %s", protocol.Join(res.Errors))
	}
	return &Catalog{Entries: res.Entries, Digest: sha256Hex(raw)}, nil
}

// Match returns the cheapest entry of the given type with the requested
// motivation and affinity. Ties go to the lowest id.
func (c *Catalog) Match(kind, motivation, affinity string) (model.CatalogEntry, bool) {
	if c == nil {
		return model.CatalogEntry{}, false
	}
	var (
		best  model.CatalogEntry
		found bool
	)
	for _, e := range c.Entries {
		if e.Type != kind || e.Motivation != motivation || e.Affinity != affinity {
			continue
		}
		if !found || e.Cost < best.Cost {
			best = e
			found = true
		}
	}
	return best, found
}

// PriceList exposes the catalog costs as a price list artifact.
func (c *Catalog) PriceList(meta protocol.Meta) protocol.PriceListInput {
	out := protocol.PriceListInput{
		Header: protocol.NewHeader(protocol.SchemaPriceList, meta),
		Items:  make([]protocol.PriceItem, 0, len(c.Entries)),
	}
	for _, e := range c.Entries {
		out.Items = append(out.Items, protocol.PriceItem{ID: e.ID, Kind: e.Type, UnitCost: e.Cost})
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
