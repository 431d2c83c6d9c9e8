package metadata

import (
	"encoding/json"

	"github.com/icecapdb/icecap/pkg/errors"
)

var ErrUnknownUpdate = errors.MustNewCode("metadata.unknown_update").WithClass(errors.ClassInvalidArgument)

// Update is one action of a commit. Updates are applied to a builder in
// request order; a failed update aborts the whole commit.
type Update interface {
	// Action returns the wire tag of the update
	Action() string
	// Apply mutates the document under construction
	Apply(b *Builder) error
}

type AssignUUIDUpdate struct {
	UUID string `json:"uuid"`
}

func (AssignUUIDUpdate) Action() string { return "assign-uuid" }

func (u AssignUUIDUpdate) Apply(b *Builder) error { return b.AssignUUID(u.UUID) }

type UpgradeFormatVersionUpdate struct {
	FormatVersion int `json:"format-version"`
}

func (UpgradeFormatVersionUpdate) Action() string { return "upgrade-format-version" }

func (u UpgradeFormatVersionUpdate) Apply(b *Builder) error {
	return b.UpgradeFormatVersion(u.FormatVersion)
}

type AddSchemaUpdate struct {
	Schema Schema `json:"schema"`
}

func (AddSchemaUpdate) Action() string { return "add-schema" }

func (u AddSchemaUpdate) Apply(b *Builder) error { return b.AddSchema(u.Schema) }

type SetCurrentSchemaUpdate struct {
	SchemaID int `json:"schema-id"`
}

func (SetCurrentSchemaUpdate) Action() string { return "set-current-schema" }

func (u SetCurrentSchemaUpdate) Apply(b *Builder) error { return b.SetCurrentSchema(u.SchemaID) }

type AddPartitionSpecUpdate struct {
	Spec PartitionSpec `json:"spec"`
}

func (AddPartitionSpecUpdate) Action() string { return "add-spec" }

func (u AddPartitionSpecUpdate) Apply(b *Builder) error { return b.AddPartitionSpec(u.Spec) }

type SetDefaultSpecUpdate struct {
	SpecID int `json:"spec-id"`
}

func (SetDefaultSpecUpdate) Action() string { return "set-default-spec" }

func (u SetDefaultSpecUpdate) Apply(b *Builder) error { return b.SetDefaultSpec(u.SpecID) }

type AddSortOrderUpdate struct {
	SortOrder SortOrder `json:"sort-order"`
}

func (AddSortOrderUpdate) Action() string { return "add-sort-order" }

func (u AddSortOrderUpdate) Apply(b *Builder) error { return b.AddSortOrder(u.SortOrder) }

type SetDefaultSortOrderUpdate struct {
	SortOrderID int `json:"sort-order-id"`
}

func (SetDefaultSortOrderUpdate) Action() string { return "set-default-sort-order" }

func (u SetDefaultSortOrderUpdate) Apply(b *Builder) error {
	return b.SetDefaultSortOrder(u.SortOrderID)
}

type AddSnapshotUpdate struct {
	Snapshot Snapshot `json:"snapshot"`
}

func (AddSnapshotUpdate) Action() string { return "add-snapshot" }

func (u AddSnapshotUpdate) Apply(b *Builder) error { return b.AddSnapshot(u.Snapshot) }

type SetSnapshotRefUpdate struct {
	RefName            string  `json:"ref-name"`
	SnapshotID         int64   `json:"snapshot-id"`
	Type               RefType `json:"type"`
	MinSnapshotsToKeep *int    `json:"min-snapshots-to-keep,omitempty"`
	MaxSnapshotAgeMs   *int64  `json:"max-snapshot-age-ms,omitempty"`
	MaxRefAgeMs        *int64  `json:"max-ref-age-ms,omitempty"`
}

func (SetSnapshotRefUpdate) Action() string { return "set-snapshot-ref" }

func (u SetSnapshotRefUpdate) Apply(b *Builder) error {
	return b.SetRef(u.RefName, SnapshotRef{
		SnapshotID:         u.SnapshotID,
		Type:               u.Type,
		MinSnapshotsToKeep: u.MinSnapshotsToKeep,
		MaxSnapshotAgeMs:   u.MaxSnapshotAgeMs,
		MaxRefAgeMs:        u.MaxRefAgeMs,
	})
}

type RemoveSnapshotRefUpdate struct {
	RefName string `json:"ref-name"`
}

func (RemoveSnapshotRefUpdate) Action() string { return "remove-snapshot-ref" }

func (u RemoveSnapshotRefUpdate) Apply(b *Builder) error { return b.RemoveRef(u.RefName) }

type RemoveSnapshotsUpdate struct {
	SnapshotIDs []int64 `json:"snapshot-ids"`
}

func (RemoveSnapshotsUpdate) Action() string { return "remove-snapshots" }

func (u RemoveSnapshotsUpdate) Apply(b *Builder) error { return b.RemoveSnapshots(u.SnapshotIDs) }

type SetLocationUpdate struct {
	Location string `json:"location"`
}

func (SetLocationUpdate) Action() string { return "set-location" }

func (u SetLocationUpdate) Apply(b *Builder) error { return b.SetLocation(u.Location) }

type SetPropertiesUpdate struct {
	Updates map[string]string `json:"updates"`
}

func (SetPropertiesUpdate) Action() string { return "set-properties" }

func (u SetPropertiesUpdate) Apply(b *Builder) error { return b.SetProperties(u.Updates) }

type RemovePropertiesUpdate struct {
	Removals []string `json:"removals"`
}

func (RemovePropertiesUpdate) Action() string { return "remove-properties" }

func (u RemovePropertiesUpdate) Apply(b *Builder) error { return b.RemoveProperties(u.Removals) }

type EnableRowLineageUpdate struct{}

func (EnableRowLineageUpdate) Action() string { return "enable-row-lineage" }

func (EnableRowLineageUpdate) Apply(b *Builder) error { return b.EnableRowLineage() }

// ParseUpdate decodes one wire update by its "action" tag
func ParseUpdate(data []byte) (Update, error) {
	var tag struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, errors.New(ErrUnknownUpdate, "malformed update", err)
	}

	var (
		upd Update
		err error
	)
	switch tag.Action {
	case "assign-uuid":
		var u AssignUUIDUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "upgrade-format-version":
		var u UpgradeFormatVersionUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "add-schema":
		var u AddSchemaUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "set-current-schema":
		var u SetCurrentSchemaUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "add-spec":
		var u AddPartitionSpecUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "set-default-spec":
		var u SetDefaultSpecUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "add-sort-order":
		var u AddSortOrderUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "set-default-sort-order":
		var u SetDefaultSortOrderUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "add-snapshot":
		var u AddSnapshotUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "set-snapshot-ref":
		var u SetSnapshotRefUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "remove-snapshot-ref":
		var u RemoveSnapshotRefUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "remove-snapshots":
		var u RemoveSnapshotsUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "set-location":
		var u SetLocationUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "set-properties":
		var u SetPropertiesUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "remove-properties":
		var u RemovePropertiesUpdate
		err = json.Unmarshal(data, &u)
		upd = u
	case "enable-row-lineage":
		upd = EnableRowLineageUpdate{}
	default:
		return nil, errors.Newf(ErrUnknownUpdate, "unknown update action %q", tag.Action)
	}
	if err != nil {
		return nil, errors.New(ErrUnknownUpdate, "malformed update", err).AddContext("action", tag.Action)
	}
	return upd, nil
}

// ParseUpdates decodes a list of wire updates in order
func ParseUpdates(raw []json.RawMessage) ([]Update, error) {
	updates := make([]Update, 0, len(raw))
	for _, r := range raw {
		u, err := ParseUpdate(r)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}
