// internal/platform/validator/validator.go
package validator

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?\.)*[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?$`)

// IsDomain verifica si un string es un nombre de host válido (punycode
// incluido). Las IPs no son dominios.
func IsDomain(domain string) bool {
	domain = NormalizeHost(domain)
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}
	if net.ParseIP(domain) != nil {
		return false
	}
	return domainRegex.MatchString(domain)
}

// IsRegistrable indica si el host puede tener registro RDAP: un dominio con
// al menos dos etiquetas. Descarta localhost, IPs y etiquetas sueltas.
func IsRegistrable(host string) bool {
	host = NormalizeHost(host)
	return IsDomain(host) && strings.Contains(host, ".")
}

// IsIP indica si host es una dirección IPv4 o IPv6, con o sin corchetes.
func IsIP(host string) bool {
	host = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(host), "["), "]")
	return net.ParseIP(host) != nil
}

// NormalizeHost pasa a minúsculas y quita espacios y el punto final.
func NormalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

// IsHTTPURL valida una URL absoluta http o https con host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}
