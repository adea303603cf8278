// cookiedb.go — Cookie classification dictionary (Open Cookie Database format).
// The dictionary is a pure lookup. A missing or unreadable dictionary degrades
// every lookup to "unknown"; it never blocks aggregation.
package cookiedb

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/brennhill/psat-core/internal/types"
)

// Dictionary classifies cookie names. A nil *Dictionary is valid and knows nothing.
type Dictionary struct {
	exact    map[string]types.Analytics
	prefixes []prefixEntry // sorted by descending prefix length
}

type prefixEntry struct {
	prefix string
	info   types.Analytics
}

// Parse builds a dictionary from Open Cookie Database JSON:
// {"<platform>": [{"cookie": "...", "category": "...", "wildcardMatch": "1", ...}]}
func Parse(data []byte) (*Dictionary, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("cookiedb: invalid JSON")
	}
	d := &Dictionary{exact: make(map[string]types.Analytics)}
	gjson.ParseBytes(data).ForEach(func(platform, entries gjson.Result) bool {
		entries.ForEach(func(_, e gjson.Result) bool {
			name := strings.TrimSpace(e.Get("cookie").String())
			if name == "" {
				return true
			}
			info := types.Analytics{
				Platform:       firstNonEmpty(e.Get("platform").String(), platform.String()),
				Category:       firstNonEmpty(e.Get("category").String(), types.Uncategorized),
				Description:    e.Get("description").String(),
				DataController: e.Get("dataController").String(),
				Retention:      e.Get("retentionPeriod").String(),
				GDPRURL:        firstNonEmpty(e.Get("gdprUrl").String(), e.Get("privacyLink").String()),
			}
			if isWildcard(e.Get("wildcardMatch")) {
				d.prefixes = append(d.prefixes, prefixEntry{prefix: name, info: info})
			} else if _, dup := d.exact[name]; !dup {
				d.exact[name] = info
			}
			return true
		})
		return true
	})
	sort.SliceStable(d.prefixes, func(i, j int) bool {
		return len(d.prefixes[i].prefix) > len(d.prefixes[j].prefix)
	})
	return d, nil
}

// Load reads and parses a dictionary from r.
func Load(r io.Reader) (*Dictionary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cookiedb: read: %w", err)
	}
	return Parse(data)
}

// LoadFile reads and parses a dictionary from path.
func LoadFile(path string) (*Dictionary, error) {
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cookiedb: open %s: %w", path, err)
	}
	return Parse(data)
}

// Classify looks up name: exact match first, then the longest wildcard prefix.
func (d *Dictionary) Classify(name, _ string) (types.Analytics, bool) {
	if d == nil || name == "" {
		return types.Analytics{}, false
	}
	if info, ok := d.exact[name]; ok {
		return info, true
	}
	for _, p := range d.prefixes {
		if strings.HasPrefix(name, p.prefix) {
			return p.info, true
		}
	}
	return types.Analytics{}, false
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.exact) + len(d.prefixes)
}

func isWildcard(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Int() == 1
	case gjson.String:
		return v.String() == "1" || strings.EqualFold(v.String(), "true")
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
