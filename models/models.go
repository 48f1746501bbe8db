package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Vulnerability defines the JSON structure of a single finding.
type Vulnerability struct {
	VulnerabilityType string          `json:"vulnerability_type"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	LeakedValue       json.RawMessage `json:"leaked_value"`
	Recommendation    string          `json:"recommendation"`
	Severity          string          `json:"severity"`
	FileURL           string          `json:"file_url"`
}

// LeakedValues returns the leaked value as a list of strings. Objects are
// kept as their raw JSON text.
func (v *Vulnerability) LeakedValues() []string {
	raw := strings.TrimSpace(string(v.LeakedValue))
	if raw == "" || raw == "null" {
		return nil
	}

	var single string
	if err := json.Unmarshal(v.LeakedValue, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(v.LeakedValue, &list); err == nil {
		values := make([]string, 0, len(list))
		for _, item := range list {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				if s != "" {
					values = append(values, s)
				}
				continue
			}
			values = append(values, string(item))
		}
		return values
	}

	return []string{raw}
}

// UnmarshalJSON decodes a finding leniently. Text fields given as a list
// are joined and other scalars keep their JSON text, so one badly typed field
// does not lose the finding. leaked_value is kept as is.
func (v *Vulnerability) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("finding is null")
	}

	*v = Vulnerability{
		VulnerabilityType: flexString(fields["vulnerability_type"], " "),
		Name:              flexString(fields["name"], " "),
		Description:       flexString(fields["description"], " "),
		Recommendation:    flexString(fields["recommendation"], " "),
		Severity:          flexString(fields["severity"], " "),
		FileURL:           flexString(fields["file_url"], ", "),
	}
	if raw, ok := fields["leaked_value"]; ok {
		v.LeakedValue = append(json.RawMessage(nil), raw...)
	}
	return nil
}

func flexString(raw json.RawMessage, sep string) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if p := flexString(item, sep); p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, sep)
	}
	return string(raw)
}

// DecodeVulnerabilities decodes a JSON array of findings, or a single finding
// object. Entries that are not objects are skipped.
func DecodeVulnerabilities(data []byte) ([]Vulnerability, error) {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("{")) {
		var v Vulnerability
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return []Vulnerability{v}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, errors.New("not a findings array")
	}

	vulns := make([]Vulnerability, 0, len(items))
	for _, item := range items {
		var v Vulnerability
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		vulns = append(vulns, v)
	}
	return vulns, nil
}

// SeverityRank orders severities from unknown (0) to critical (4).
func SeverityRank(severity string) int {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	}
	return 0
}

// Chunk is a piece of filtered JavaScript handed to the analyzers.
type Chunk struct {
	FileURL string
	Index   int
	Total   int
	Code    string
}

// PublicUser is the user representation returned by the API.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ScanDTO is the scan record representation returned by the API.
type ScanDTO struct {
	ID              uint            `json:"id"`
	WebsiteLink     string          `json:"website_link"`
	UserID          string          `json:"user_id"`
	ScanComplete    bool            `json:"scan_complete"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ScanUpdate is a progress message of a running scan.
type ScanUpdate struct {
	Message  string `json:"message"`
	Progress *int   `json:"progress,omitempty"`
}
