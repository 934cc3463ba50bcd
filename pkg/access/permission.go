package access

import (
	"bytes"
	"fmt"
)

// DeployPermission is a per-user deploy override. The zero value is
// DeployUnset, which defers to the default policy and is not the same as
// DeployDenied.
type DeployPermission int

const (
	DeployUnset DeployPermission = iota
	DeployAllowed
	DeployDenied
)

// PermissionFromBool converts an explicit boolean override.
func PermissionFromBool(allowed bool) DeployPermission {
	if allowed {
		return DeployAllowed
	}

	return DeployDenied
}

// IsSet reports whether the permission is an explicit override.
func (p DeployPermission) IsSet() bool {
	return p == DeployAllowed || p == DeployDenied
}

func (p DeployPermission) String() string {
	switch p {
	case DeployAllowed:
		return "allowed"
	case DeployDenied:
		return "denied"
	default:
		return "unset"
	}
}

// MarshalJSON encodes an override as true/false and unset as null. Struct
// fields tagged omitempty drop the unset value entirely.
func (p DeployPermission) MarshalJSON() ([]byte, error) {
	switch p {
	case DeployAllowed:
		return []byte("true"), nil
	case DeployDenied:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false or null. Anything else is an error.
func (p *DeployPermission) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*p = DeployAllowed
	case "false":
		*p = DeployDenied
	case "null":
		*p = DeployUnset
	default:
		return fmt.Errorf("deploy permission must be a boolean, got %s", data)
	}

	return nil
}

// Overrides is a snapshot of the explicit deploy overrides across the whole
// registry, keyed by username.
type Overrides map[string]DeployPermission

// Managed reports whether any user carries an explicit override. A managed
// registry denies by default.
func (o Overrides) Managed() bool {
	for _, p := range o {
		if p.IsSet() {
			return true
		}
	}

	return false
}
