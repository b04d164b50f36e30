package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/model"
)

const (
	catalogKeyPrefix  = "satellite:tle:"
	catalogKeyPattern = catalogKeyPrefix + "*"
	categorySetPrefix = "satellites:category:"
)

// catalogRecord mirrors the element-set JSON the ingestion side writes
// under satellite:tle:<id>. Field names follow the upstream GP catalog
// format; numbers arrive as either strings or numbers, so they are decoded
// leniently.
type catalogRecord struct {
	NoradCatID json.Number `json:"NORAD_CAT_ID"`
	ObjectName string      `json:"OBJECT_NAME"`
	ObjectType string      `json:"OBJECT_TYPE"`
	Category   string      `json:"CATEGORY"`
	TLELine1   string      `json:"TLE_LINE1"`
	TLELine2   string      `json:"TLE_LINE2"`
	Period     json.Number `json:"PERIOD"`
	LastSync   string      `json:"LAST_SYNC"`
}

// CatalogStore reads and writes the per-object element-set records the
// engine analyzes. Records are immutable per refresh; writing the same key
// supersedes the previous snapshot.
type CatalogStore struct {
	kv  KeyValueStore
	ttl time.Duration
	log logging.Logger
}

// NewCatalogStore wraps a key-value store. ttl bounds the lifetime of
// written element sets; non-positive falls back to 24h.
func NewCatalogStore(kv KeyValueStore, ttl time.Duration, log logging.Logger) *CatalogStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logging.Noop()
	}
	return &CatalogStore{kv: kv, ttl: ttl, log: log}
}

// GetCatalog loads every live object in the catalog. Individual records
// that fail to decode are skipped and logged; only a store failure aborts
// the load.
func (c *CatalogStore) GetCatalog(ctx context.Context) ([]*model.OrbitalObject, error) {
	keys, err := c.kv.Keys(ctx, catalogKeyPattern)
	if err != nil {
		return nil, err
	}

	objects := make([]*model.OrbitalObject, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := c.kv.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // expired between Keys and Get
		}

		obj, err := decodeCatalogRecord(raw)
		if err != nil {
			c.log.Warn(ctx, "skipping undecodable catalog record",
				logging.String("key", key), logging.Err(err))
			continue
		}
		objects = append(objects, obj)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].NoradID < objects[j].NoradID
	})
	return objects, nil
}

// GetObject loads a single object by NORAD id.
func (c *CatalogStore) GetObject(ctx context.Context, noradID int) (*model.OrbitalObject, bool, error) {
	raw, ok, err := c.kv.Get(ctx, fmt.Sprintf("%s%d", catalogKeyPrefix, noradID))
	if err != nil || !ok {
		return nil, false, err
	}
	obj, err := decodeCatalogRecord(raw)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// PutObject stores a refreshed element set and maintains the per-category
// index set.
func (c *CatalogStore) PutObject(ctx context.Context, obj *model.OrbitalObject) error {
	if obj == nil || obj.NoradID <= 0 {
		return fmt.Errorf("invalid orbital object")
	}
	if !obj.HasElements() {
		return fmt.Errorf("object %d missing element set", obj.NoradID)
	}

	record := catalogRecord{
		NoradCatID: json.Number(strconv.Itoa(obj.NoradID)),
		ObjectName: obj.Name,
		ObjectType: obj.Type.String(),
		Category:   obj.Category,
		TLELine1:   obj.Line1,
		TLELine2:   obj.Line2,
		LastSync:   obj.RefreshedAt.UTC().Format(time.RFC3339),
	}
	if obj.PeriodMinutes > 0 {
		record.Period = json.Number(strconv.FormatFloat(obj.PeriodMinutes, 'f', -1, 64))
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode catalog record %d: %w", obj.NoradID, err)
	}

	key := fmt.Sprintf("%s%d", catalogKeyPrefix, obj.NoradID)
	if err := c.kv.Set(ctx, key, raw, c.ttl); err != nil {
		return err
	}

	category := obj.Category
	if category == "" {
		category = "unknown"
	}
	return c.kv.SetAdd(ctx, categorySetPrefix+category, strconv.Itoa(obj.NoradID))
}

// Count returns the number of live catalog records, for health reporting.
func (c *CatalogStore) Count(ctx context.Context) (int, error) {
	keys, err := c.kv.Keys(ctx, catalogKeyPattern)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func decodeCatalogRecord(raw []byte) (*model.OrbitalObject, error) {
	var record catalogRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}

	noradID, err := strconv.Atoi(record.NoradCatID.String())
	if err != nil || noradID <= 0 {
		return nil, fmt.Errorf("bad NORAD_CAT_ID %q", record.NoradCatID)
	}
	if record.TLELine1 == "" || record.TLELine2 == "" {
		return nil, fmt.Errorf("object %d missing TLE lines", noradID)
	}

	obj := &model.OrbitalObject{
		NoradID:  noradID,
		Name:     record.ObjectName,
		Category: record.Category,
		Type:     model.ParseObjectType(record.ObjectType),
		Line1:    record.TLELine1,
		Line2:    record.TLELine2,
	}
	if record.Period != "" {
		if period, err := record.Period.Float64(); err == nil && period > 0 {
			obj.PeriodMinutes = period
		}
	}
	if record.LastSync != "" {
		if at, err := time.Parse(time.RFC3339, record.LastSync); err == nil {
			obj.RefreshedAt = at
		}
	}
	return obj, nil
}
