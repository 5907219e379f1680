package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Column names for the Asset's mounted attributes.
const (
	ColumnAvatar  = "avatar"
	ColumnGallery = "gallery"
)

// Asset is the demo record shipped with the library: one single-file mount
// (avatar) and one multi-file mount (gallery).
//
// Serialization: the avatar column holds a single identifier as plain text;
// the gallery column holds a JSON array of identifiers.
type Asset struct {
	ID        uint   `gorm:"primarykey"`
	Name      string `gorm:"size:255;not null"`
	Avatar    string `gorm:"size:512"`
	Gallery   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssetRecord adapts an Asset row to the Record interface.
type AssetRecord struct {
	Asset  *Asset
	store  *Store
	frozen bool
}

// NewAssetRecord binds an asset to its store.
func (s *Store) NewAssetRecord(a *Asset) *AssetRecord {
	return &AssetRecord{Asset: a, store: s}
}

// Key implements Record.
func (r *AssetRecord) Key() string {
	return fmt.Sprintf("asset/%d", r.Asset.ID)
}

// ReadColumn implements Record.
func (r *AssetRecord) ReadColumn(column string) ([]string, bool) {
	switch column {
	case ColumnAvatar:
		if r.Asset.Avatar == "" {
			return nil, true
		}
		return []string{r.Asset.Avatar}, true
	case ColumnGallery:
		if r.Asset.Gallery == "" {
			return nil, true
		}
		var ids []string
		if err := json.Unmarshal([]byte(r.Asset.Gallery), &ids); err != nil {
			// A malformed cell reads as empty rather than poisoning the mount.
			return nil, true
		}
		return ids, true
	default:
		return nil, false
	}
}

// WriteColumn implements Record.
func (r *AssetRecord) WriteColumn(column string, identifiers []string) {
	switch column {
	case ColumnAvatar:
		if len(identifiers) == 0 {
			r.Asset.Avatar = ""
		} else {
			r.Asset.Avatar = identifiers[0]
		}
	case ColumnGallery:
		if len(identifiers) == 0 {
			r.Asset.Gallery = ""
		} else {
			data, err := json.Marshal(identifiers)
			if err == nil {
				r.Asset.Gallery = string(data)
			}
		}
	}
}

// Frozen implements Record.
func (r *AssetRecord) Frozen() bool { return r.frozen }

// Freeze marks the record immutable.
func (r *AssetRecord) Freeze() { r.frozen = true }

// Reload implements Record: re-reads the row from the database.
func (r *AssetRecord) Reload(ctx context.Context) (Record, error) {
	if r.Asset.ID == 0 {
		return nil, nil
	}
	fresh, err := r.store.GetAsset(ctx, r.Asset.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, nil
	}
	return r.store.NewAssetRecord(fresh), nil
}

var _ Record = (*AssetRecord)(nil)
