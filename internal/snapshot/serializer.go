package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/internal/shard"
	"github.com/tesseradb/tessera/pkg/types"
)

// EnvelopeVersion is the current archive format version. Readers accept
// any version up to this one.
const EnvelopeVersion = 1

// Envelope is the stable JSON form of an archived snapshot. Bounds are
// carried in the same text encoding the catalog stores.
type Envelope struct {
	Version    int             `json:"version"`
	TableID    int64           `json:"table_id"`
	TableName  string          `json:"table_name"`
	Column     EnvelopeColumn  `json:"column"`
	Method     string          `json:"method"`
	Convention string          `json:"convention"`
	NullPolicy string          `json:"null_policy"`
	ArchivedAt time.Time       `json:"archived_at"`
	Shards     []EnvelopeShard `json:"shards"`
}

// EnvelopeColumn describes the partition column.
type EnvelopeColumn struct {
	Name    string `json:"name"`
	Ordinal int    `json:"ordinal"`
	Type    string `json:"type"`
}

// EnvelopeShard is one shard interval. Nil bounds mark open sides; a
// shard with both bounds nil is the catch-all.
type EnvelopeShard struct {
	ShardID int64   `json:"shard_id"`
	Min     *string `json:"min"`
	Max     *string `json:"max"`
}

// Marshal renders a snapshot into its archive envelope.
func Marshal(snap *shard.Snapshot) ([]byte, error) {
	meta := snap.Meta()
	intervals := snap.Intervals()

	env := Envelope{
		Version:    EnvelopeVersion,
		TableID:    meta.TableID,
		TableName:  meta.TableName,
		Column: EnvelopeColumn{
			Name:    meta.Column.Name,
			Ordinal: meta.Column.Ordinal,
			Type:    meta.Column.TypeID.String(),
		},
		Method:     string(meta.Method),
		Convention: string(meta.Convention),
		NullPolicy: string(meta.NullPolicy),
		ArchivedAt: time.Now().UTC(),
		Shards:     make([]EnvelopeShard, 0, snap.NumShards()),
	}

	for _, iv := range intervals {
		minText, maxText := iv.EncodeBounds()
		env.Shards = append(env.Shards, EnvelopeShard{
			ShardID: iv.ShardID,
			Min:     minText,
			Max:     maxText,
		})
	}
	// The catch-all shard is not a bounded interval; carry it with both
	// bounds null
	if catchAllID, ok := snap.CatchAll(); ok {
		env.Shards = append(env.Shards, EnvelopeShard{ShardID: catchAllID})
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, terrors.NewSnapshotError("failed to encode snapshot envelope", err)
	}
	return data, nil
}

// Unmarshal decodes an archive envelope and rebuilds the snapshot. The
// snapshot constructor re-runs full layout validation, so a tampered
// envelope fails the same way a malformed catalog does.
func Unmarshal(data []byte) (*shard.Snapshot, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, terrors.NewSnapshotError("undecodable snapshot envelope", err)
	}

	if env.Version < 1 || env.Version > EnvelopeVersion {
		return nil, terrors.NewSnapshotError(
			fmt.Sprintf("unsupported envelope version %d", env.Version), nil)
	}

	method, err := types.ParsePartitionMethod(env.Method)
	if err != nil {
		return nil, terrors.NewSnapshotError("envelope stores an unknown partition method", err)
	}
	convention, err := types.ParseBoundConvention(env.Convention)
	if err != nil {
		return nil, terrors.NewSnapshotError("envelope stores an unknown bound convention", err)
	}
	nullPolicy, err := types.ParseNullPolicy(env.NullPolicy)
	if err != nil {
		return nil, terrors.NewSnapshotError("envelope stores an unknown null policy", err)
	}
	typeID, err := types.ParseValueTypeID(env.Column.Type)
	if err != nil {
		return nil, terrors.NewSnapshotError("envelope stores an unknown column type", err)
	}

	meta := shard.Meta{
		TableID:   env.TableID,
		TableName: env.TableName,
		Column: types.PartitionColumn{
			TableID: env.TableID,
			Ordinal: env.Column.Ordinal,
			Name:    env.Column.Name,
			TypeID:  typeID,
		},
		Method:     method,
		Convention: convention,
		NullPolicy: nullPolicy,
	}

	// Hash shard bounds are int32 tokens regardless of the column type
	boundType := typeID
	if method == types.MethodHash {
		boundType = types.TypeInt64
	}

	intervals := make([]shard.Interval, 0, len(env.Shards))
	for _, s := range env.Shards {
		iv, err := shard.ParseInterval(s.ShardID, s.Min, s.Max, boundType)
		if err != nil {
			return nil, terrors.NewSnapshotError(
				fmt.Sprintf("envelope shard %d stores an undecodable bound", s.ShardID), err)
		}
		intervals = append(intervals, iv)
	}

	return shard.NewSnapshot(meta, intervals)
}
