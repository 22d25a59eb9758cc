// Package semver checks announced channel protocol versions against a constraint.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:protocol"

var (
	// ErrIncompatible is returned when a version does not satisfy the constraint.
	ErrIncompatible = errors.New("semver: incompatible protocol version")
	// ErrNoVersion is returned when a constraint is set but nothing was announced.
	ErrNoVersion = errors.New("semver: no protocol version announced")
)

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a constraint is a bare major (e.g. "1").
func IsMajorOnly(constraint string) bool {
	return majorOnlyRegex.MatchString(constraint)
}

// CheckProtocol reports whether version satisfies constraint. An empty constraint
// accepts anything, including no version. A bare major ("1") matches every version
// with that major, prereleases included; anything else is a Masterminds range
// ("^1.2.0", "~1.0", ">=1.0.0 <2.0.0").
func CheckProtocol(version, constraint string) error {
	if constraint == "" {
		return nil
	}
	if version == "" {
		return ErrNoVersion
	}

	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}

	if IsMajorOnly(constraint) {
		major, _ := strconv.ParseUint(constraint, 10, 64)
		if sv.Major() != major {
			return fmt.Errorf("%w: %s is not major %s", ErrIncompatible, version, constraint)
		}
		return nil
	}

	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("%s - invalid constraint %q: %w", logPrefix, constraint, err)
	}
	if ok, errs := c.Validate(sv); !ok {
		if len(errs) > 0 {
			return fmt.Errorf("%w: %v", ErrIncompatible, errs[0])
		}
		return fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatible, version, constraint)
	}
	return nil
}
