package accounts

import (
	"strings"
)

// Capabilities is a set of the characters 'r' (read), 'w' (write) and
// 'a' (administer).
type Capabilities string

const (
	CapsNone      Capabilities = ""
	CapsRead      Capabilities = "r"
	CapsReadWrite Capabilities = "rw"
	CapsAll       Capabilities = "rwa"
)

// Has reports whether every character of required is in c.
func (c Capabilities) Has(required string) bool {
	for _, r := range required {
		if !strings.ContainsRune(string(c), r) {
			return false
		}
	}
	return true
}

// AccessPolicy governs what non-owners may do with a resource.
type AccessPolicy string

const (
	// AccessPublic lets anyone read and signed-in users read and write.
	AccessPublic AccessPolicy = "public"
	// AccessRestricted lets anyone read.
	AccessRestricted AccessPolicy = "restricted"
	// AccessPrivate hides the resource from everyone but its owner.
	AccessPrivate AccessPolicy = "private"
)

func (p AccessPolicy) Valid() bool {
	switch p {
	case AccessPublic, AccessRestricted, AccessPrivate:
		return true
	}
	return false
}

// Resource is an owned object guarded by capabilities.
type Resource interface {
	ResourceOwnerID() string
	ResourcePolicy() AccessPolicy
	// ResourceOwnerOnly overrides the policy: only the owner has access.
	ResourceOwnerOnly() bool
}

// CapabilitiesFor computes what requester may do with resource. requester is
// nil for anonymous requests. The result depends on nothing but its inputs.
func CapabilitiesFor(requester *Account, resource Resource) Capabilities {
	if resource == nil {
		return CapsNone
	}
	if requester != nil && requester.ID != "" && requester.ID == resource.ResourceOwnerID() {
		return CapsAll
	}
	if resource.ResourceOwnerOnly() {
		return CapsNone
	}
	anonymous := requester == nil || requester.ID == ""
	switch resource.ResourcePolicy() {
	case AccessPublic:
		if anonymous {
			return CapsRead
		}
		return CapsReadWrite
	case AccessRestricted:
		return CapsRead
	}
	return CapsNone
}

// Authorize checks that requester holds every capability in required.
// Anonymous requesters who may not even see the resource get ErrNotFound so
// that private resources cannot be probed; everyone else gets
// ErrInsufficientPrivilege.
func Authorize(requester *Account, resource Resource, required string) error {
	caps := CapabilitiesFor(requester, resource)
	if caps.Has(required) {
		return nil
	}
	if caps == CapsNone && (requester == nil || requester.ID == "") {
		return ErrNotFound
	}
	return ErrInsufficientPrivilege
}
