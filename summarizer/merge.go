package summarizer

import (
	"encoding/json"
	"guardex/models"
	"strings"
)

// Merge groups findings by type and name without a model. Leaked values are
// collected into one distinct list and the highest severity wins. Groups keep
// the order of their first finding.
func Merge(findings []models.Vulnerability) []models.Vulnerability {
	type group struct {
		vuln   models.Vulnerability
		values []string
		seen   map[string]struct{}
		files  []string
	}

	var (
		order  []string
		groups = make(map[string]*group)
	)

	for _, f := range findings {
		key := strings.ToLower(strings.TrimSpace(f.VulnerabilityType)) + "\x00" + strings.ToLower(strings.TrimSpace(f.Name))

		g, ok := groups[key]
		if !ok {
			g = &group{vuln: f, seen: make(map[string]struct{})}
			groups[key] = g
			order = append(order, key)
		} else if models.SeverityRank(f.Severity) > models.SeverityRank(g.vuln.Severity) {
			g.vuln.Severity = f.Severity
		}

		for _, v := range f.LeakedValues() {
			if _, dup := g.seen[v]; dup {
				continue
			}
			g.seen[v] = struct{}{}
			g.values = append(g.values, v)
		}
		if f.FileURL != "" && !contains(g.files, f.FileURL) {
			g.files = append(g.files, f.FileURL)
		}
	}

	out := make([]models.Vulnerability, 0, len(order))
	for _, key := range order {
		g := groups[key]
		v := g.vuln
		v.LeakedValue = json.RawMessage("null")
		if len(g.values) > 0 {
			if raw, err := json.Marshal(g.values); err == nil {
				v.LeakedValue = raw
			}
		}
		v.FileURL = strings.Join(g.files, ", ")
		out = append(out, v)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
