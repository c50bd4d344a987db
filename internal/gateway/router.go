package gateway

import (
	"net/http"
	"sort"
	"strings"
)

// Router decides which request paths are guarded.
type Router struct {
	prefixes []string
}

// NewRouter keeps the non-empty prefixes, longest first.
func NewRouter(prefixes []string) *Router {
	kept := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i]) > len(kept[j])
	})

	return &Router{prefixes: kept}
}

// Match returns the longest protected prefix of the request path.
func (r *Router) Match(req *http.Request) (string, bool) {
	if r == nil || req == nil || req.URL == nil {
		return "", false
	}

	path := req.URL.Path
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(path, prefix) {
			return prefix, true
		}
	}

	return "", false
}
