package retrieval

import (
	"context"
	"errors"
	"strings"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/storage"
)

// expandCommodity returns the names to try for commodity, in order: the
// requested name, its configured alias group, then catalog aliases.
// Duplicates are dropped case-insensitively.
func (p *Pipeline) expandCommodity(ctx context.Context, commodity string) []string {
	commodity = strings.TrimSpace(commodity)
	if commodity == "" {
		return []string{""}
	}

	seen := make(map[string]bool)
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" || seen[domain.Fold(n)] {
				continue
			}
			seen[domain.Fold(n)] = true
			out = append(out, n)
		}
	}

	add(commodity)
	for _, g := range p.cfg.CommodityAliases {
		if !groupHas(g.Canonical, g.Aliases, commodity) {
			continue
		}
		add(g.Canonical)
		add(g.Aliases...)
	}

	if p.deps.Commodities != nil {
		entry, err := p.deps.Commodities.Lookup(ctx, commodity)
		switch {
		case err == nil && entry != nil:
			add(entry.Name)
			add(entry.Aliases...)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			p.logger.WithContext(ctx).Debug().Err(err).Str("commodity", commodity).Msg("commodity catalog lookup failed")
		}
	}
	return out
}

func groupHas(canonical string, aliases []string, name string) bool {
	if strings.EqualFold(canonical, name) {
		return true
	}
	for _, a := range aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}
