package eventstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vsm-systems/corevsm/internal/compress"
	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

var snapshotBucket = []byte("snapshots")

// boltSnapshotStore persists snapshots durably in a single-file bbolt
// database: a concrete, production-usable backend for advisory stream
// snapshots, using the same embedded-KV approach an orchestrator would
// use for durable local state.
type boltSnapshotStore struct {
	db *bolt.DB
	codec compress.Compressor
}

// NewBoltSnapshotStore opens (creating if necessary) a bbolt database at
// path and prepares the snapshot bucket. Records are zstd-compressed
// before they hit disk, since aggregate snapshots can grow large and
// ratio matters more here than on the broker's hot broadcast path.
func NewBoltSnapshotStore(path string) (SnapshotStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("eventstore: open bolt snapshot store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore: init bolt snapshot bucket: %w", err)
	}
	codec, err := compress.NewZstdCompressor()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore: init snapshot codec: %w", err)
	}
	return &boltSnapshotStore{db: db, codec: codec}, nil
}

// Close releases the underlying database handle.
func (b *boltSnapshotStore) Close() error {
	return b.db.Close()
}

type snapshotRecord struct {
	StreamID string `json:"stream_id"`
	AggregateVersion int64 `json:"aggregate_version"`
	Payload json.RawMessage `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

func (b *boltSnapshotStore) Save(snap Snapshot) error {
	payloadJSON, err := encodeValue(snap.Payload)
	if err != nil {
		return fmt.Errorf("eventstore: encode snapshot payload: %w", err)
	}
	record := snapshotRecord{
		StreamID: snap.StreamID,
		AggregateVersion: snap.AggregateVersion,
		Payload: payloadJSON,
		Timestamp: snap.Timestamp,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("eventstore: marshal snapshot record: %w", err)
	}
	compressed, err := b.codec.Compress(data)
	if err != nil {
		return fmt.Errorf("eventstore: compress snapshot record: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(snap.StreamID), compressed)
	})
}

func (b *boltSnapshotStore) Load(streamID string) (Snapshot, bool, error) {
	var record snapshotRecord
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		compressed := tx.Bucket(snapshotBucket).Get([]byte(streamID))
		if compressed == nil {
			return nil
		}
		found = true
		data, err := b.codec.Decompress(compressed)
		if err != nil {
			return fmt.Errorf("eventstore: decompress snapshot record: %w", err)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("eventstore: load snapshot: %w", err)
	}
	if !found {
		return Snapshot{}, false, nil
	}
	payload, err := decodeValue(record.Payload)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("eventstore: decode snapshot payload: %w", err)
	}
	return Snapshot{
		StreamID: record.StreamID,
		AggregateVersion: record.AggregateVersion,
		Payload: payload,
		Timestamp: record.Timestamp,
	}, true, nil
}

// encodeValue and decodeValue bridge vsmvalue.Value through JSON for
// on-disk storage; jsonValue mirrors the Value's tagged shape explicitly
// rather than relying on interface{} round-tripping.
type jsonValue struct {
	Kind string `json:"kind"`
	Str string `json:"str,omitempty"`
	Num float64 `json:"num,omitempty"`
	Flag bool `json:"flag,omitempty"`
	List []jsonValue `json:"list,omitempty"`
	Dict map[string]jsonValue `json:"dict,omitempty"`
}

func toJSONValue(v vsmvalue.Value) jsonValue {
	switch v.Kind() {
	case vsmvalue.KindString:
		s, _ := v.AsString()
		return jsonValue{Kind: "string", Str: s}
	case vsmvalue.KindFloat64:
		f, _ := v.AsFloat64()
		return jsonValue{Kind: "float64", Num: f}
	case vsmvalue.KindBool:
		b, _ := v.AsBool()
		return jsonValue{Kind: "bool", Flag: b}
	case vsmvalue.KindList:
		items, _ := v.AsList()
		out := make([]jsonValue, len(items))
		for i, item := range items {
			out[i] = toJSONValue(item)
		}
		return jsonValue{Kind: "list", List: out}
	case vsmvalue.KindMap:
		entries, _ := v.AsMap()
		out := make(map[string]jsonValue, len(entries))
		for k, item := range entries {
			out[k] = toJSONValue(item)
		}
		return jsonValue{Kind: "map", Dict: out}
	default:
		return jsonValue{Kind: "null"}
	}
}

func fromJSONValue(j jsonValue) vsmvalue.Value {
	switch j.Kind {
	case "string":
		return vsmvalue.String(j.Str)
	case "float64":
		return vsmvalue.Float64(j.Num)
	case "bool":
		return vsmvalue.Bool(j.Flag)
	case "list":
		items := make([]vsmvalue.Value, len(j.List))
		for i, item := range j.List {
			items[i] = fromJSONValue(item)
		}
		return vsmvalue.List(items...)
	case "map":
		entries := make(map[string]vsmvalue.Value, len(j.Dict))
		for k, item := range j.Dict {
			entries[k] = fromJSONValue(item)
		}
		return vsmvalue.Map(entries)
	default:
		return vsmvalue.Null()
	}
}

func encodeValue(v vsmvalue.Value) (json.RawMessage, error) {
	return json.Marshal(toJSONValue(v))
}

func decodeValue(raw json.RawMessage) (vsmvalue.Value, error) {
	if len(raw) == 0 {
		return vsmvalue.Null(), nil
	}
	var j jsonValue
	if err := json.Unmarshal(raw, &j); err != nil {
		return vsmvalue.Value{}, err
	}
	return fromJSONValue(j), nil
}
