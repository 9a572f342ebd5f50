package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/version"
)

// VersionRecord is one published configuration version.
type VersionRecord struct {
	Name        string              `yaml:"name"`
	Path        string              `yaml:"path"`
	Version     version.Version     `yaml:"version"`
	ID          string              `yaml:"id,omitempty"`
	Group       string              `yaml:"group,omitempty"`
	Application string              `yaml:"application,omitempty"`
	Description string              `yaml:"description,omitempty"`
	Resources   []string            `yaml:"resources,omitempty"`
	Instance    string              `yaml:"instance"`
	PublishedBy confnode.ModifiedBy `yaml:"published-by"`
}

// historyKey scopes history to one major version so that publishers holding
// different major locks never write the same record.
func historyKey(path string, major int) string {
	return path + "@" + strconv.Itoa(major)
}

func splitHistoryKey(key string) (path string, major int, err error) {
	i := strings.LastIndexByte(key, '@')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed history key %q", key)
	}
	major, err = strconv.Atoi(key[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed history key %q: %w", key, err)
	}
	return key[:i], major, nil
}

var nowUTC = func() time.Time { return time.Now().UTC() }
