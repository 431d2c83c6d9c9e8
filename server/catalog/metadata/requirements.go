package metadata

import (
	"encoding/json"

	"github.com/icecapdb/icecap/pkg/errors"
)

var (
	ErrRequirementFailed  = errors.MustNewCode("metadata.requirement_failed").WithClass(errors.ClassConflict)
	ErrUnknownRequirement = errors.MustNewCode("metadata.unknown_requirement").WithClass(errors.ClassInvalidArgument)
)

// Requirement is a precondition checked against the current metadata
// before any update in a commit is applied. A failed requirement aborts
// the whole commit with a conflict.
type Requirement interface {
	// Type returns the wire tag of the requirement
	Type() string
	// Validate checks the requirement against the table's current
	// metadata. meta is nil when the table does not exist yet.
	Validate(meta *TableMetadata) error
}

// AssertCreate requires that the table does not exist. Its presence turns
// a commit into a create.
type AssertCreate struct{}

func (AssertCreate) Type() string { return "assert-create" }

func (AssertCreate) Validate(meta *TableMetadata) error {
	if meta != nil {
		return errors.New(ErrRequirementFailed, "assert-create failed: table already exists", nil)
	}
	return nil
}

// AssertTableUUID requires the table to carry a specific uuid
type AssertTableUUID struct {
	UUID string `json:"uuid"`
}

func (AssertTableUUID) Type() string { return "assert-table-uuid" }

func (r AssertTableUUID) Validate(meta *TableMetadata) error {
	if meta == nil {
		return errors.New(ErrRequirementFailed, "assert-table-uuid failed: table does not exist", nil)
	}
	if meta.TableUUID != r.UUID {
		return errors.Newf(ErrRequirementFailed,
			"assert-table-uuid failed: expected %s, found %s", r.UUID, meta.TableUUID)
	}
	return nil
}

// AssertRefSnapshotID requires a ref to point at a given snapshot, or to
// be absent when SnapshotID is nil. This is the optimistic concurrency
// check for snapshot-producing commits.
type AssertRefSnapshotID struct {
	Ref        string `json:"ref"`
	SnapshotID *int64 `json:"snapshot-id"`
}

func (AssertRefSnapshotID) Type() string { return "assert-ref-snapshot-id" }

func (r AssertRefSnapshotID) Validate(meta *TableMetadata) error {
	if meta == nil {
		return errors.New(ErrRequirementFailed, "assert-ref-snapshot-id failed: table does not exist", nil)
	}
	ref, ok := meta.Ref(r.Ref)
	if r.SnapshotID == nil {
		if ok {
			return errors.Newf(ErrRequirementFailed,
				"assert-ref-snapshot-id failed: ref %q exists at snapshot %d", r.Ref, ref.SnapshotID)
		}
		return nil
	}
	if !ok {
		return errors.Newf(ErrRequirementFailed,
			"assert-ref-snapshot-id failed: ref %q does not exist", r.Ref)
	}
	if ref.SnapshotID != *r.SnapshotID {
		return errors.Newf(ErrRequirementFailed,
			"assert-ref-snapshot-id failed: ref %q is at snapshot %d, expected %d",
			r.Ref, ref.SnapshotID, *r.SnapshotID)
	}
	return nil
}

// AssertCurrentSchemaID requires the current schema id to match
type AssertCurrentSchemaID struct {
	SchemaID int `json:"current-schema-id"`
}

func (AssertCurrentSchemaID) Type() string { return "assert-current-schema-id" }

func (r AssertCurrentSchemaID) Validate(meta *TableMetadata) error {
	if meta == nil {
		return errors.New(ErrRequirementFailed, "assert-current-schema-id failed: table does not exist", nil)
	}
	if meta.CurrentSchemaID != r.SchemaID {
		return errors.Newf(ErrRequirementFailed,
			"assert-current-schema-id failed: current schema is %d, expected %d",
			meta.CurrentSchemaID, r.SchemaID)
	}
	return nil
}

// AssertDefaultSpecID requires the default partition spec id to match
type AssertDefaultSpecID struct {
	SpecID int `json:"default-spec-id"`
}

func (AssertDefaultSpecID) Type() string { return "assert-default-spec-id" }

func (r AssertDefaultSpecID) Validate(meta *TableMetadata) error {
	if meta == nil {
		return errors.New(ErrRequirementFailed, "assert-default-spec-id failed: table does not exist", nil)
	}
	if meta.DefaultSpecID != r.SpecID {
		return errors.Newf(ErrRequirementFailed,
			"assert-default-spec-id failed: default spec is %d, expected %d",
			meta.DefaultSpecID, r.SpecID)
	}
	return nil
}

// AssertDefaultSortOrderID requires the default sort order id to match
type AssertDefaultSortOrderID struct {
	SortOrderID int `json:"default-sort-order-id"`
}

func (AssertDefaultSortOrderID) Type() string { return "assert-default-sort-order-id" }

func (r AssertDefaultSortOrderID) Validate(meta *TableMetadata) error {
	if meta == nil {
		return errors.New(ErrRequirementFailed, "assert-default-sort-order-id failed: table does not exist", nil)
	}
	if meta.DefaultSortOrderID != r.SortOrderID {
		return errors.Newf(ErrRequirementFailed,
			"assert-default-sort-order-id failed: default sort order is %d, expected %d",
			meta.DefaultSortOrderID, r.SortOrderID)
	}
	return nil
}

// AssertLastAssignedPartitionID requires the partition field counter to match
type AssertLastAssignedPartitionID struct {
	PartitionID int `json:"last-assigned-partition-id"`
}

func (AssertLastAssignedPartitionID) Type() string { return "assert-last-assigned-partition-id" }

func (r AssertLastAssignedPartitionID) Validate(meta *TableMetadata) error {
	if meta == nil {
		return errors.New(ErrRequirementFailed, "assert-last-assigned-partition-id failed: table does not exist", nil)
	}
	if meta.LastPartitionID != r.PartitionID {
		return errors.Newf(ErrRequirementFailed,
			"assert-last-assigned-partition-id failed: last partition id is %d, expected %d",
			meta.LastPartitionID, r.PartitionID)
	}
	return nil
}

// AssertLastAssignedFieldID requires the column counter to match
type AssertLastAssignedFieldID struct {
	FieldID int `json:"last-assigned-field-id"`
}

func (AssertLastAssignedFieldID) Type() string { return "assert-last-assigned-field-id" }

func (r AssertLastAssignedFieldID) Validate(meta *TableMetadata) error {
	if meta == nil {
		return errors.New(ErrRequirementFailed, "assert-last-assigned-field-id failed: table does not exist", nil)
	}
	if meta.LastColumnID != r.FieldID {
		return errors.Newf(ErrRequirementFailed,
			"assert-last-assigned-field-id failed: last column id is %d, expected %d",
			meta.LastColumnID, r.FieldID)
	}
	return nil
}

// ParseRequirement decodes one wire requirement by its "type" tag
func ParseRequirement(data []byte) (Requirement, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, errors.New(ErrUnknownRequirement, "malformed requirement", err)
	}

	var (
		req Requirement
		err error
	)
	switch tag.Type {
	case "assert-create":
		req = AssertCreate{}
	case "assert-table-uuid":
		var r AssertTableUUID
		err = json.Unmarshal(data, &r)
		req = r
	case "assert-ref-snapshot-id":
		var r AssertRefSnapshotID
		err = json.Unmarshal(data, &r)
		req = r
	case "assert-current-schema-id":
		var r AssertCurrentSchemaID
		err = json.Unmarshal(data, &r)
		req = r
	case "assert-default-spec-id":
		var r AssertDefaultSpecID
		err = json.Unmarshal(data, &r)
		req = r
	case "assert-default-sort-order-id":
		var r AssertDefaultSortOrderID
		err = json.Unmarshal(data, &r)
		req = r
	case "assert-last-assigned-partition-id":
		var r AssertLastAssignedPartitionID
		err = json.Unmarshal(data, &r)
		req = r
	case "assert-last-assigned-field-id":
		var r AssertLastAssignedFieldID
		err = json.Unmarshal(data, &r)
		req = r
	default:
		return nil, errors.Newf(ErrUnknownRequirement, "unknown requirement type %q", tag.Type)
	}
	if err != nil {
		return nil, errors.New(ErrUnknownRequirement, "malformed requirement", err).AddContext("type", tag.Type)
	}
	return req, nil
}

// ParseRequirements decodes a list of wire requirements in order
func ParseRequirements(raw []json.RawMessage) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(raw))
	for _, r := range raw {
		req, err := ParseRequirement(r)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
