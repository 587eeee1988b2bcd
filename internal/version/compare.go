package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// CheckSchemaCompatibility checks whether data written with storedSchema can
// be opened by a binary that writes supportedSchema.
//
// Compatibility Rules:
//   - Major versions must match exactly
//   - The stored minor.patch must not be newer than the supported one
//
// Examples:
//   - Supported 1.2.0, Stored 1.2.0 -> OK
//   - Supported 1.2.0, Stored 1.0.3 -> OK (older minor, columns are a subset)
//   - Supported 1.2.0, Stored 1.3.0 -> ERROR (written by a newer binary)
//   - Supported 2.0.0, Stored 1.2.0 -> ERROR (major differs)
func CheckSchemaCompatibility(supportedSchema, storedSchema string) error {
	supportedSchema = strings.TrimPrefix(supportedSchema, "v")
	storedSchema = strings.TrimPrefix(storedSchema, "v")

	supported, err := semver.NewVersion(supportedSchema)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid supported schema version '%s'", supportedSchema)
	}

	stored, err := semver.NewVersion(storedSchema)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid stored schema version '%s'", storedSchema)
	}

	if supported.Major() != stored.Major() {
		return errors.Newf(errors.ErrCodeInvalidVersion, "major version mismatch: binary writes %d.x.x but journal is %d.x.x",
			supported.Major(), stored.Major())
	}

	constraint, err := semver.NewConstraint(fmt.Sprintf("<= %s", supported.String()))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidVersion, "failed to build schema constraint", err)
	}

	if !constraint.Check(stored) {
		return errors.Newf(errors.ErrCodeInvalidVersion, "journal schema %s is newer than supported %s",
			stored.String(), supported.String())
	}

	return nil
}
