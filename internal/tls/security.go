package tls

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/polisai/polis-expose/pkg/config"
)

// openSSLCipherNames maps OpenSSL-style cipher names, as commonly found in
// TLS_CIPHERS values, to Go cipher suite identifiers.
var openSSLCipherNames = map[string]uint16{
	"ECDHE-ECDSA-AES128-GCM-SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-RSA-AES128-GCM-SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-ECDSA-AES256-GCM-SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-RSA-AES256-GCM-SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-ECDSA-CHACHA20-POLY1305": tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	"ECDHE-RSA-CHACHA20-POLY1305":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"ECDHE-ECDSA-AES128-SHA256":     tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
	"ECDHE-RSA-AES128-SHA256":       tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
	"ECDHE-ECDSA-AES128-SHA":        tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	"ECDHE-RSA-AES128-SHA":          tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	"ECDHE-ECDSA-AES256-SHA":        tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	"ECDHE-RSA-AES256-SHA":          tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	"AES128-GCM-SHA256":             tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	"AES256-GCM-SHA384":             tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	"AES128-SHA256":                 tls.TLS_RSA_WITH_AES_128_CBC_SHA256,
	"AES128-SHA":                    tls.TLS_RSA_WITH_AES_128_CBC_SHA,
	"AES256-SHA":                    tls.TLS_RSA_WITH_AES_256_CBC_SHA,
	"ECDHE-RSA-DES-CBC3-SHA":        tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA,
	"DES-CBC3-SHA":                  tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
}

// insecureCiphers lists suites that are accepted but logged as weak.
var insecureCiphers = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:                "RC4 is cryptographically broken",
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:          "RC4 is cryptographically broken",
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:        "RC4 is cryptographically broken",
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:           "3DES is weak and deprecated",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA:     "3DES is weak and deprecated",
	tls.TLS_RSA_WITH_AES_128_CBC_SHA:            "CBC mode without AEAD is vulnerable",
	tls.TLS_RSA_WITH_AES_256_CBC_SHA:            "CBC mode without AEAD is vulnerable",
	tls.TLS_RSA_WITH_AES_128_CBC_SHA256:         "CBC mode without AEAD is vulnerable",
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA:      "CBC mode without AEAD is vulnerable",
	tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA:      "CBC mode without AEAD is vulnerable",
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA:    "CBC mode without AEAD is vulnerable",
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA:    "CBC mode without AEAD is vulnerable",
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256:   "CBC mode without AEAD is vulnerable",
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256: "CBC mode without AEAD is vulnerable",
}

// ParseMinVersion converts a protocol version label into a crypto/tls
// version constant. Both "TLSv1.2" and "1.2" forms are accepted; an empty
// value means TLS 1.2.
func ParseMinVersion(version string) (uint16, error) {
	normalized := strings.TrimSpace(version)
	normalized = strings.TrimPrefix(normalized, "TLSv")
	normalized = strings.TrimPrefix(normalized, "TLS")

	switch normalized {
	case "":
		return tls.VersionTLS12, nil
	case "1", "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, config.NewConfigValidationError("tls_min_version", version, "unsupported TLS version").
			WithSuggestion("Use one of TLSv1, TLSv1.1, TLSv1.2, TLSv1.3")
	}
}

// ParseCipherSuites converts a cipher list into crypto/tls identifiers.
//
// Entries may be separated by ':' or ',' and use either IANA names
// (TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256) or OpenSSL names
// (ECDHE-RSA-AES128-GCM-SHA256). OpenSSL exclusion and ordering directives
// (prefixed with '!', '-' or '+') are ignored. TLS 1.3 suites are accepted
// but not returned since Go does not make them configurable. An empty list
// returns nil, meaning platform defaults.
func ParseCipherSuites(list string) ([]uint16, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}

	byName := make(map[string]uint16)
	tls13 := make(map[string]bool)
	for _, suite := range append(tls.CipherSuites(), tls.InsecureCipherSuites()...) {
		byName[suite.Name] = suite.ID
		if len(suite.SupportedVersions) == 1 && suite.SupportedVersions[0] == tls.VersionTLS13 {
			tls13[suite.Name] = true
		}
	}

	fields := strings.FieldsFunc(list, func(r rune) bool { return r == ':' || r == ',' })

	var ids []uint16
	seen := make(map[uint16]bool)
	for _, field := range fields {
		name := strings.TrimSpace(field)
		if name == "" || strings.ContainsAny(name[:1], "!-+") {
			continue
		}
		if tls13[name] {
			continue
		}

		id, ok := byName[name]
		if !ok {
			id, ok = openSSLCipherNames[name]
		}
		if !ok {
			return nil, config.NewConfigValidationError("tls_ciphers", name, "unknown cipher suite").
				WithSuggestion("Use IANA names such as TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 or OpenSSL names such as ECDHE-RSA-AES128-GCM-SHA256")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// CipherSecurityWarnings returns one message per weak suite in the list.
func CipherSecurityWarnings(cipherSuites []uint16) []string {
	var warnings []string
	for _, id := range cipherSuites {
		if reason, ok := insecureCiphers[id]; ok {
			warnings = append(warnings, fmt.Sprintf("%s: %s", tls.CipherSuiteName(id), reason))
		}
	}
	return warnings
}
