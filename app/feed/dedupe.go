package feed

// Dedupe drops items whose link has already been seen, keeping the first
// occurrence and the input order. Links are compared as exact strings.
func Dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	unique := make([]Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Link]; ok {
			continue
		}
		seen[item.Link] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}
