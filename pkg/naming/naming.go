// Package naming derives the single DNS-label identity of a deployment,
// used as both its Kubernetes namespace name and its Helm release name.
package naming

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	// MaxDNSLabelLen is the RFC 1123 label length limit.
	MaxDNSLabelLen = 63
	suffixLen      = 6
	baseMaxLen     = MaxDNSLabelLen - (suffixLen + 1)

	fallbackBase = "dep"
	base36       = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	dnsLabelRE  = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	suffixRE    = regexp.MustCompile(`^[0-9a-z]{6}$`)
	nonAlnumRE  = regexp.MustCompile(`[^a-z0-9]+`)
	hyphenRunRE = regexp.MustCompile(`-+`)
)

// Slugify lowercases the input, replaces non-alphanumeric runs with a
// single hyphen and trims leading/trailing hyphens.
func Slugify(value string) string {
	lowered := strings.ToLower(value)
	replaced := nonAlnumRE.ReplaceAllString(lowered, "-")
	collapsed := hyphenRunRE.ReplaceAllString(replaced, "-")
	return strings.Trim(collapsed, "-")
}

// IsDNSLabel reports whether value is a valid RFC 1123 DNS label.
func IsDNSLabel(value string) bool {
	return dnsLabelRE.MatchString(value)
}

// NewDeploymentUID builds a deployment identity from the product name and
// user email, with a random 6-char base36 suffix for uniqueness.
func NewDeploymentUID(productName, userEmail string) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return newDeploymentUID(productName, userEmail, suffix)
}

func newDeploymentUID(productName, userEmail, suffix string) (string, error) {
	if !suffixRE.MatchString(suffix) {
		return "", fmt.Errorf("suffix must match [0-9a-z]{6}, got %q", suffix)
	}

	parts := []string{}
	for _, token := range []string{Slugify(productName), Slugify(userEmail)} {
		if token != "" {
			parts = append(parts, token)
		}
	}
	base := strings.Join(parts, "-")
	if base == "" {
		base = fallbackBase
	}
	base = trimBaseForSuffix(base)

	uid := base + "-" + suffix
	if len(uid) > MaxDNSLabelLen || !IsDNSLabel(uid) {
		return "", fmt.Errorf("generated deployment uid %q is not a valid DNS label", uid)
	}
	return uid, nil
}

func trimBaseForSuffix(base string) string {
	if len(base) > baseMaxLen {
		base = base[:baseMaxLen]
	}
	base = strings.TrimRight(base, "-")
	if base == "" {
		return fallbackBase
	}
	return base
}

func randomSuffix() (string, error) {
	b := make([]byte, suffixLen)
	max := big.NewInt(int64(len(base36)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = base36[n.Int64()]
	}
	return string(b), nil
}
