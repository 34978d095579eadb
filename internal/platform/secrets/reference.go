package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// reference is a parsed secret://name?version=N&project=P URI.
type reference struct {
	canonical string
	name      string
	version   string
	project   string
}

func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	if rest, ok := strings.CutPrefix(raw, "sm://"); ok {
		raw = "secret://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}

	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		canonical: "secret://" + name,
		name:      name,
		version:   version,
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func (r reference) key() string {
	return r.canonical + "#" + r.version
}

func (r reference) masked() string {
	sum := sha256.Sum256([]byte(r.canonical))
	return hex.EncodeToString(sum[:8])
}
