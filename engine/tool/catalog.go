package tool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// CatalogItem is one entry of a tenant's product catalog.
type CatalogItem struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// ResolveUnderRoot joins rel to root and rejects any result that would
// land outside root. Tenant paths come from editable config, so a
// traversal attempt must not reach the filesystem.
func ResolveUnderRoot(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("%w: knowledge base path is empty", contractx.ErrValidation)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", contractx.ErrPathEscape, rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve data root: %w", err)
	}
	resolved := filepath.Join(absRoot, rel)

	relToRoot, err := filepath.Rel(absRoot, resolved)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", contractx.ErrPathEscape, rel)
	}
	return resolved, nil
}

// LoadCatalog reads a catalog file. A missing file is an empty
// catalog, matching the admin API's view of a tenant with no products.
func LoadCatalog(path string) ([]CatalogItem, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []CatalogItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var items []CatalogItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return items, nil
}

// SaveCatalog writes the full catalog back. Concurrent engine reads are
// not synchronized with admin writes; eventual consistency is fine.
func SaveCatalog(path string, items []CatalogItem) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	return nil
}

// FilterCatalog returns the items whose name contains term
// (case-insensitive). An empty term returns everything.
func FilterCatalog(items []CatalogItem, term string) []CatalogItem {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return items
	}
	matched := make([]CatalogItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), term) {
			matched = append(matched, item)
		}
	}
	return matched
}
