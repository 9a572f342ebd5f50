package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	Build  = "dev"
	Commit = "unknown"
	Date   = "unknown"
)

func Full() string {
	return Build + " (" + Commit + ") built on " + Date
}

var ErrInvalidVersion = errors.New("invalid version")

// Version identifies a configuration revision. Locks are scoped to Major.
type Version struct {
	Major int `yaml:"major" json:"major"`
	Minor int `yaml:"minor" json:"minor"`
}

func New(major, minor int) Version {
	return Version{Major: major, Minor: minor}
}

// Parse accepts "<major>" or "<major>.<minor>".
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	major, minor, hasMinor := strings.Cut(s, ".")

	mj, err := strconv.Atoi(major)
	if err != nil || mj < 0 {
		return Version{}, fmt.Errorf("%w: major %q", ErrInvalidVersion, major)
	}

	v := Version{Major: mj}
	if hasMinor {
		mn, err := strconv.Atoi(minor)
		if err != nil || mn < 0 {
			return Version{}, fmt.Errorf("%w: minor %q", ErrInvalidVersion, minor)
		}
		v.Minor = mn
	}

	return v, nil
}

func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor != o.Minor:
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	}
	return 0
}
