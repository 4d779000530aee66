package rules

import "github.com/viniciushammett/go-threat-monitor/internal/model"

const ipv4 = `(?P<ip>\d{1,3}(?:\.\d{1,3}){3})`

// DefaultRules is evaluated in order; brute force comes first so auth lines
// keep their attacker address.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "ssh-failed-password", Category: string(model.BruteForce), Severity: "high",
			Pattern: `(?i)Failed password for (?:invalid user\s+)?\S+ from ` + ipv4 + ` .*ssh2`,
		},
		{
			Name: "ssh-invalid-user", Category: string(model.BruteForce), Severity: "medium",
			Pattern: `(?i)Invalid user \S+ from ` + ipv4,
		},
		{
			Name: "sql-injection", Category: string(model.SQLInjection), Severity: "high", Field: "url",
			Pattern: `(?i)(%27|'|--|%23|#|%22|"|;|%3D|\bunion\b.+\bselect\b|\bsleep\(\d+\)|\bor\b\s*1\s*=\s*1)`,
		},
		{
			Name: "path-traversal", Category: string(model.PathTraversal), Severity: "high", Field: "url",
			Pattern: `(?i)(\.\./|\.\.\\|%2e%2e(?:%2f|/|%5c)|\.\.%2f|\.\.%5c)`,
		},
		{
			Name: "code-execution", Category: string(model.RemoteCodeExecution), Severity: "critical", Field: "url",
			Pattern: `(?i)(system\(|exec\(|passthru\(|shell_exec\(|popen\(|proc_open\(|eval\()`,
		},
		{
			Name: "sensitive-file", Category: string(model.SensitiveFileAccess), Severity: "medium", Field: "url",
			Pattern: `(?i)(/etc/passwd|/etc/shadow|/\.env\b|/\.git/|/\.htpasswd|/\.aws/|wp-config\.php|id_rsa|\.bak$|\.sql$)`,
		},
		{
			Name: "recon-path", Category: string(model.Reconnaissance), Severity: "low", Field: "url",
			Pattern: `(?i)^/(wp-admin|wp-login\.php|xmlrpc\.php|phpmyadmin|pma|cgi-bin/|actuator|server-status|solr/|console|HNAP1|boaform)`,
		},
		{
			Name: "scanner-agent", Category: string(model.Reconnaissance), Severity: "low",
			Pattern: `(?i)\b(nikto|sqlmap|nmap|masscan|zgrab|dirbuster|gobuster|wpscan|nuclei)\b`,
		},
		{
			Name: "malware-signature", Category: string(model.MalwareSignature), Severity: "critical",
			Pattern: `(?i)(c99\.php|r57\.php|b374k|wso\.php|eval\(base64_decode|\$\{jndi:|/bin/(?:ba)?sh\s+-c|(?:wget|curl)\s+https?://\S+\s*\|\s*(?:ba)?sh|mozi\.[am]\b|\bmirai\b)`,
		},
	}
}
