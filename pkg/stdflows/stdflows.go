// Package stdflows registers the built-in flow catalogue: general
// purpose combinators specialized to untyped items so they can be
// referenced from declarative pipelines and MCP tools.
package stdflows

import (
	"fmt"
	"strings"

	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/registry"
)

// Register installs the built-in catalogue into the registry.
func Register(reg *registry.Registry) error {
	type entry struct {
		name       string
		f          flow.Flow[any, any]
		categories []string
	}

	entries := []entry{
		{
			name: "identity",
			f: flow.Identity[any]().
				WithMetadata("description", "passes items through unchanged"),
			categories: []string{"utility"},
		},
		{
			name: "stringify",
			f: flow.Map(func(item any) any {
				return fmt.Sprintf("%v", item)
			}).WithName("map(stringify)").
				WithMetadata("description", "renders every item as a string"),
			categories: []string{"transformation"},
		},
		{
			name: "trim_space",
			f: flow.Map(func(item any) any {
				if s, ok := item.(string); ok {
					return strings.TrimSpace(s)
				}
				return item
			}).WithName("map(trim_space)").
				WithMetadata("description", "trims surrounding whitespace from string items"),
			categories: []string{"transformation"},
		},
		{
			name: "lowercase",
			f: flow.Map(func(item any) any {
				if s, ok := item.(string); ok {
					return strings.ToLower(s)
				}
				return item
			}).WithName("map(lowercase)").
				WithMetadata("description", "lowercases string items"),
			categories: []string{"transformation"},
		},
		{
			name: "drop_nil",
			f: flow.Filter(func(item any) bool {
				return item != nil
			}).WithName("filter(drop_nil)").
				WithMetadata("description", "removes nil items from the stream"),
			categories: []string{"filtering"},
		},
		{
			name: "drop_empty_strings",
			f: flow.Filter(func(item any) bool {
				s, ok := item.(string)
				return !ok || s != ""
			}).WithName("filter(drop_empty_strings)").
				WithMetadata("description", "removes empty string items"),
			categories: []string{"filtering"},
		},
		{
			name: "distinct",
			f: flow.DistinctBy(func(item any) string {
				return fmt.Sprintf("%v", item)
			}).WithName("distinct(rendered)").
				WithMetadata("description", "drops items whose rendered value was already seen"),
			categories: []string{"deduplication"},
		},
		{
			name: "compact_maps",
			f: flow.Map(func(item any) any {
				m, ok := item.(map[string]any)
				if !ok {
					return item
				}
				out := make(map[string]any, len(m))
				for k, v := range m {
					if v != nil {
						out[k] = v
					}
				}
				return out
			}).WithName("map(compact_maps)").
				WithMetadata("description", "removes nil-valued keys from map items"),
			categories: []string{"transformation"},
		},
	}

	for _, e := range entries {
		if err := reg.Register(e.name, e.f, e.categories...); err != nil {
			return err
		}
	}
	return nil
}
