package analyzer

import "fmt"

const chunkPrompt = `You are a senior web security auditor. Analyze the JavaScript code below and return a list of real, exploitable security vulnerabilities that developers must fix immediately.

Focus on:
- Secrets and API key leaks (Firebase, Stripe, OpenAI, GitHub, JWTs, etc.)
- Full Firebase configuration exposure: report a full config object (apiKey, authDomain, projectId, storageBucket, messagingSenderId, appId, measurementId) as one vulnerability with the whole object as leaked_value
- Token exposure in localStorage or sessionStorage
- Cloudinary upload abuse (upload_preset, full links, hardcoded endpoints)
- Hardcoded WebSocket or API URLs to backend servers
- Use of dangerous JS APIs
- Logic flaws or insecure access such as unauthenticated upload endpoints or directly reachable internal APIs
- OWASP Top 10 issues: XSS, CSRF, SSRF, SQLi, command injection

Do not report:
- Known-safe URLs such as http://www.w3.org/2000/svg, http://www.w3.org/1999/xhtml, http://www.w3.org/1998/Math/MathML, http://schemas.xmlsoap.org/wsdl/
- Theoretical issues with no confirmed exploit
- Placeholder values ("...", "REDACTED", "null", "undefined")
- Public fonts, schemas and documentation links

Return a JSON array. Each finding is an object like:

` + "```json" + `
{
  "vulnerability_type": "e.g. Firebase Config Leak / Token Exposure / XSS",
  "name": "Short title of the issue",
  "description": "The security flaw in 1-2 lines",
  "leaked_value": "Exact hardcoded value (token, key, config object) or null",
  "recommendation": "Clear, actionable fix",
  "severity": "low / medium / high / critical",
  "file_url": "N/A"
}
` + "```" + `

Analyze:
%s
`

// ChunkPrompt builds the audit prompt for one chunk of code.
func ChunkPrompt(chunk string) string {
	return fmt.Sprintf(chunkPrompt, chunk)
}
