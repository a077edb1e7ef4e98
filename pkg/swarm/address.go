package swarm

import (
	"strings"
)

// AddressScheme is the optional URI scheme of an Address
const AddressScheme = "bzz://"

// Address is a Reference plus an optional path inside the manifest it
// points at.
type Address struct {
	Reference Reference
	Path      string
}

// NewAddress pairs a reference with a path; leading slashes are dropped
func NewAddress(ref Reference, path string) Address {
	return Address{Reference: ref, Path: strings.TrimLeft(path, "/")}
}

// ParseAddress parses "[bzz://][/]<reference>[/<path>]"
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, NewValidationError("empty address", nil)
	}

	s = strings.TrimPrefix(s, AddressScheme)
	s = strings.TrimLeft(s, "/")

	refPart, path, _ := strings.Cut(s, "/")
	ref, err := ParseHexReference(refPart)
	if err != nil {
		return Address{}, err
	}

	return Address{Reference: ref, Path: path}, nil
}

// HasPath reports whether the address targets an entry inside a manifest
func (a Address) HasPath() bool {
	return a.Path != ""
}

// String returns "<reference>[/<path>]"
func (a Address) String() string {
	if a.Path == "" {
		return a.Reference.String()
	}
	return a.Reference.String() + "/" + a.Path
}
