package homepage

import (
	"sort"
	"strings"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// MapDrafts flattens a bookmarks config into drafts, in file order.
// Keys of the same YAML mapping are visited alphabetically. Entries without
// an href are skipped; validation is left to the engine.
func MapDrafts(config BookmarksConfig) []domain.Draft {
	drafts := make([]domain.Draft, 0)

	for _, group := range config {
		for _, groupName := range sortedKeys(group) {
			for _, bookmarkMap := range group[groupName] {
				for _, name := range sortedKeys(bookmarkMap) {
					entries := bookmarkMap[name]
					if len(entries) == 0 {
						continue
					}
					entry := entries[0]

					href := strings.TrimSpace(entry.Href)
					if href == "" {
						continue
					}

					drafts = append(drafts, domain.Draft{Title: name, URL: href})
				}
			}
		}
	}

	return drafts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
