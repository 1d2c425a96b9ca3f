package connector

import (
	"net/url"
	"path/filepath"
	"strings"
)

// RemoteRepository locates a repository
type RemoteRepository struct {
	ID     string `json:"id" yaml:"id"`
	URL    string `json:"url" yaml:"url"`
	Layout string `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// Protocol is the lowercase scheme of the URL of the repository
func (r RemoteRepository) Protocol() string {
	i := strings.Index(r.URL, ":")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(r.URL[:i])
}

// Basedir is the path of the repository: a local path for file repositories,
// the path part of the URL otherwise
func (r RemoteRepository) Basedir() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if r.Protocol() == "file" {
		return filepath.FromSlash(p)
	}
	return p
}

func (r RemoteRepository) String() string {
	if r.ID == "" {
		return r.URL
	}
	return r.ID + " (" + r.URL + ")"
}
