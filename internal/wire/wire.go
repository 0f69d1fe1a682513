// Package wire encodes and decodes the registry's signed envelope and
// package payload. The wire format is protobuf (field numbers and types
// fixed by the registry protocol), but no .proto-generated bindings are
// available in this module, so messages are hand-encoded against
// google.golang.org/protobuf/encoding/protowire directly. This is the
// same low-level package protoc-gen-go itself emits calls to, so the
// bytes produced here are wire-compatible with any standard protobuf
// decoder.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// RetirementReason classifies why a release was retired.
type RetirementReason int32

const (
	RetirementOther      RetirementReason = 0
	RetirementInvalid    RetirementReason = 1
	RetirementSecurity   RetirementReason = 2
	RetirementDeprecated RetirementReason = 3
	RetirementRenamed    RetirementReason = 4
)

// RetirementStatus carries a release's retirement reason and free text.
type RetirementStatus struct {
	Reason  RetirementReason
	Message string
}

// Dependency is one declared dependency edge of a release.
type Dependency struct {
	Package     string
	Requirement string
	Optional    bool
	App         string
	Repository  string
}

// Release is one published version of a package.
type Release struct {
	Version        string
	InnerChecksum  []byte
	Dependencies   []Dependency
	Retired        *RetirementStatus
}

// Package is the decoded registry payload for one package.
type Package struct {
	Repository string
	Name       string
	Releases   []Release
}

// Signed is the outer envelope: a payload and its detached signature.
type Signed struct {
	Payload   []byte
	Signature []byte
}

const (
	fieldSignedPayload   = protowire.Number(1)
	fieldSignedSignature = protowire.Number(2)

	fieldPackageRepository = protowire.Number(1)
	fieldPackageName       = protowire.Number(2)
	fieldPackageReleases   = protowire.Number(3)

	fieldReleaseVersion       = protowire.Number(1)
	fieldReleaseInnerChecksum = protowire.Number(2)
	fieldReleaseDependencies  = protowire.Number(3)
	fieldReleaseRetired       = protowire.Number(4)

	fieldDependencyPackage     = protowire.Number(1)
	fieldDependencyRequirement = protowire.Number(2)
	fieldDependencyOptional    = protowire.Number(3)
	fieldDependencyApp         = protowire.Number(4)
	fieldDependencyRepository  = protowire.Number(5)

	fieldRetirementReason  = protowire.Number(1)
	fieldRetirementMessage = protowire.Number(2)
)

// EncodeSigned marshals a Signed envelope.
func EncodeSigned(s Signed) []byte {
	var b []byte
	b = appendBytesField(b, fieldSignedPayload, s.Payload)
	b = appendBytesField(b, fieldSignedSignature, s.Signature)
	return b
}

// DecodeSigned unmarshals a Signed envelope.
func DecodeSigned(data []byte) (Signed, error) {
	var s Signed
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldSignedPayload:
			s.Payload = append([]byte(nil), v...)
		case fieldSignedSignature:
			s.Signature = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Signed{}, err
	}
	return s, nil
}

// EncodePackage marshals a Package payload.
func EncodePackage(p Package) []byte {
	var b []byte
	b = appendStringField(b, fieldPackageRepository, p.Repository)
	b = appendStringField(b, fieldPackageName, p.Name)
	for _, r := range p.Releases {
		b = appendBytesField(b, fieldPackageReleases, encodeRelease(r))
	}
	return b
}

// DecodePackage unmarshals a Package payload.
func DecodePackage(data []byte) (Package, error) {
	var p Package
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldPackageRepository:
			p.Repository = string(v)
		case fieldPackageName:
			p.Name = string(v)
		case fieldPackageReleases:
			r, err := decodeRelease(v)
			if err != nil {
				return err
			}
			p.Releases = append(p.Releases, r)
		}
		return nil
	})
	if err != nil {
		return Package{}, err
	}
	return p, nil
}

func encodeRelease(r Release) []byte {
	var b []byte
	b = appendStringField(b, fieldReleaseVersion, r.Version)
	b = appendBytesField(b, fieldReleaseInnerChecksum, r.InnerChecksum)
	for _, d := range r.Dependencies {
		b = appendBytesField(b, fieldReleaseDependencies, encodeDependency(d))
	}
	if r.Retired != nil {
		b = appendBytesField(b, fieldReleaseRetired, encodeRetirement(*r.Retired))
	}
	return b
}

func decodeRelease(data []byte) (Release, error) {
	var r Release
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldReleaseVersion:
			r.Version = string(v)
		case fieldReleaseInnerChecksum:
			r.InnerChecksum = append([]byte(nil), v...)
		case fieldReleaseDependencies:
			d, err := decodeDependency(v)
			if err != nil {
				return err
			}
			r.Dependencies = append(r.Dependencies, d)
		case fieldReleaseRetired:
			status, err := decodeRetirement(v)
			if err != nil {
				return err
			}
			r.Retired = &status
		}
		return nil
	})
	if err != nil {
		return Release{}, err
	}
	return r, nil
}

func encodeDependency(d Dependency) []byte {
	var b []byte
	b = appendStringField(b, fieldDependencyPackage, d.Package)
	b = appendStringField(b, fieldDependencyRequirement, d.Requirement)
	if d.Optional {
		b = appendVarintField(b, fieldDependencyOptional, 1)
	}
	b = appendStringField(b, fieldDependencyApp, d.App)
	b = appendStringField(b, fieldDependencyRepository, d.Repository)
	return b
}

func decodeDependency(data []byte) (Dependency, error) {
	var d Dependency
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldDependencyPackage:
			d.Package = string(v)
		case fieldDependencyRequirement:
			d.Requirement = string(v)
		case fieldDependencyOptional:
			n, _ := protowire.ConsumeVarint(v)
			d.Optional = n != 0
		case fieldDependencyApp:
			d.App = string(v)
		case fieldDependencyRepository:
			d.Repository = string(v)
		}
		return nil
	})
	if err != nil {
		return Dependency{}, err
	}
	return d, nil
}

func encodeRetirement(s RetirementStatus) []byte {
	var b []byte
	b = appendVarintField(b, fieldRetirementReason, uint64(s.Reason))
	b = appendStringField(b, fieldRetirementMessage, s.Message)
	return b
}

func decodeRetirement(data []byte) (RetirementStatus, error) {
	var s RetirementStatus
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldRetirementReason:
			n, _ := protowire.ConsumeVarint(v)
			s.Reason = RetirementReason(n)
		case fieldRetirementMessage:
			s.Message = string(v)
		}
		return nil
	})
	if err != nil {
		return RetirementStatus{}, err
	}
	return s, nil
}

// appendVarintField appends a varint-typed field's tag and value.
func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendStringField appends a length-delimited string field, skipping it
// entirely when empty: protobuf's scalar encoding never emits a field at
// its default value, so an absent string and an empty string decode
// identically.
func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	return appendBytesField(b, num, []byte(v))
}

// appendBytesField appends a length-delimited bytes field.
func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// forEachField walks the top-level fields of a protobuf message,
// decoding varint and length-delimited values (the only wire types this
// schema uses) and passing the raw payload bytes to fn. Unknown fields
// and wire types are skipped, per protobuf's forward-compatibility
// contract.
func forEachField(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("malformed protobuf tag")
		}
		data = data[n:]

		var value []byte
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return fmt.Errorf("malformed varint field %d", num)
			}
			value = protowire.AppendVarint(nil, v)
			data = data[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return fmt.Errorf("malformed bytes field %d", num)
			}
			value = v
			data = data[m:]
		case protowire.Fixed32Type:
			_, m := protowire.ConsumeFixed32(data)
			if m < 0 {
				return fmt.Errorf("malformed fixed32 field %d", num)
			}
			data = data[m:]
			continue
		case protowire.Fixed64Type:
			_, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return fmt.Errorf("malformed fixed64 field %d", num)
			}
			data = data[m:]
			continue
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return fmt.Errorf("malformed field %d", num)
			}
			data = data[m:]
			continue
		}

		if err := fn(num, typ, value); err != nil {
			return err
		}
	}
	return nil
}
