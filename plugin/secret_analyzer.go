package plugin

import (
	"context"
	"encoding/json"
	"guardex/models"
	"regexp"
	"strings"
)

type secretRule struct {
	kind           string
	name           string
	description    string
	recommendation string
	severity       string
	re             *regexp.Regexp
	// group selects the submatch holding the leaked value; 0 is the whole match.
	group int
}

var secretRules = []secretRule{
	{
		kind:           "API Key Leak",
		name:           "Google API key exposed",
		description:    "A Google API key is hardcoded in client-side JavaScript and can be reused by anyone.",
		recommendation: "Restrict the key by referrer and API in the Google Cloud console, rotate it, and proxy privileged calls through the backend.",
		severity:       "high",
		re:             regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),
	},
	{
		kind:           "Cloud Credential Leak",
		name:           "AWS access key id exposed",
		description:    "An AWS access key id is shipped to the browser.",
		recommendation: "Deactivate the key in IAM and move AWS calls behind an authenticated backend.",
		severity:       "critical",
		re:             regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	},
	{
		kind:           "API Key Leak",
		name:           "Stripe live secret key exposed",
		description:    "A Stripe live secret or restricted key allows charges and refunds on the account.",
		recommendation: "Roll the key in the Stripe dashboard immediately and only use publishable keys on the client.",
		severity:       "critical",
		re:             regexp.MustCompile(`\b[sr]k_live_[0-9a-zA-Z]{24,}`),
	},
	{
		kind:           "Token Exposure",
		name:           "GitHub token exposed",
		description:    "A GitHub personal access or app token grants repository access.",
		recommendation: "Revoke the token on GitHub and keep tokens out of frontend bundles.",
		severity:       "critical",
		re:             regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	},
	{
		kind:           "Token Exposure",
		name:           "Slack token exposed",
		description:    "A Slack token can read or post messages in the workspace.",
		recommendation: "Revoke the token in the Slack app settings and move Slack calls server side.",
		severity:       "high",
		re:             regexp.MustCompile(`\bxox[baprs]-[0-9A-Za-z-]{10,}`),
	},
	{
		kind:           "Secret Leak",
		name:           "Private key embedded in bundle",
		description:    "A PEM private key block is present in client-side code.",
		recommendation: "Treat the key as compromised, replace it and never ship private keys to the browser.",
		severity:       "critical",
		re:             regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
	},
	{
		kind:           "Token Exposure",
		name:           "Hardcoded JWT",
		description:    "A signed JSON Web Token is embedded in the code and may grant access to the API.",
		recommendation: "Remove the token from the bundle and issue short-lived tokens at login instead.",
		severity:       "high",
		re:             regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	},
	{
		kind:           "Hardcoded Endpoint",
		name:           "Hardcoded WebSocket endpoint",
		description:    "A backend WebSocket URL is hardcoded and exposes the realtime server to direct access.",
		recommendation: "Load the endpoint from configuration and require authentication on connect.",
		severity:       "medium",
		re:             regexp.MustCompile("wss?://[^\\s\"'`<>)]+"),
	},
	{
		kind:           "Cloudinary Upload Abuse",
		name:           "Cloudinary upload preset exposed",
		description:    "An unsigned Cloudinary upload preset lets anyone upload files to the account.",
		recommendation: "Switch to signed uploads generated by the backend or restrict the preset.",
		severity:       "medium",
		re:             regexp.MustCompile(`upload_preset["']?\s*[:=,]\s*["']([^"']+)["']`),
		group:          1,
	},
	{
		kind:           "Token Exposure",
		name:           "Token stored in web storage",
		description:    "An authentication token is written to localStorage or sessionStorage where any injected script can read it.",
		recommendation: "Keep session tokens in HttpOnly, Secure cookies.",
		severity:       "medium",
		re:             regexp.MustCompile(`(?i)(?:localStorage|sessionStorage)\.setItem\(\s*["']([^"']*(?:token|jwt|auth)[^"']*)["']`),
		group:          1,
	},
}

var safeURLPrefixes = []string{
	"http://www.w3.org/",
	"https://www.w3.org/",
	"http://schemas.xmlsoap.org/",
}

var placeholders = map[string]struct{}{
	"...":       {},
	"redacted":  {},
	"null":      {},
	"undefined": {},
}

// SecretAnalyzer detects well-known secret formats without calling a model.
type SecretAnalyzer struct{}

// NewSecretAnalyzer returns the offline secret detector.
func NewSecretAnalyzer() *SecretAnalyzer {
	return &SecretAnalyzer{}
}

// Name returns the plugin name.
func (s *SecretAnalyzer) Name() string {
	return SecretAnalyzerName
}

// Run reports one finding per matching rule with all distinct leaked values.
func (s *SecretAnalyzer) Run(ctx context.Context, chunk *models.Chunk) ([]models.Vulnerability, error) {
	var vulns []models.Vulnerability

	for _, rule := range secretRules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values := matches(rule, chunk.Code)
		if len(values) == 0 {
			continue
		}

		leaked, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		vulns = append(vulns, models.Vulnerability{
			VulnerabilityType: rule.kind,
			Name:              rule.name,
			Description:       rule.description,
			LeakedValue:       leaked,
			Recommendation:    rule.recommendation,
			Severity:          rule.severity,
			FileURL:           chunk.FileURL,
		})
	}
	return vulns, nil
}

func matches(rule secretRule, code string) []string {
	var (
		values []string
		seen   = make(map[string]struct{})
	)
	for _, m := range rule.re.FindAllStringSubmatch(code, -1) {
		v := m[rule.group]
		if ignored(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}

func ignored(v string) bool {
	if _, ok := placeholders[strings.ToLower(strings.TrimSpace(v))]; ok {
		return true
	}
	for _, p := range safeURLPrefixes {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}
