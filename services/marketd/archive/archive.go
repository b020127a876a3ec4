package archive

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"nftmarket/core/events"
	"nftmarket/core/types"
)

// DefaultLimit bounds query results when the caller does not.
const DefaultLimit = 100

// MaxLimit is the largest page a query may request.
const MaxLimit = 1000

var (
	// ErrChainBroken is returned by Verify when a stored digest does not match
	// the recomputed chain.
	ErrChainBroken = errors.New("archive: digest chain broken")
)

// Record is one archived marketplace event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64    `gorm:"uniqueIndex;not null" json:"seq"`
	Type       string    `gorm:"index;not null" json:"type"`
	Contract   string    `gorm:"index:idx_records_asset" json:"contract,omitempty"`
	AssetID    string    `gorm:"index:idx_records_asset" json:"assetId,omitempty"`
	Attributes string    `gorm:"type:text;not null" json:"-"`
	Digest     string    `gorm:"size:64;not null" json:"digest"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name across drivers.
func (Record) TableName() string { return "market_events" }

// Event decodes the stored wire event.
func (r Record) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("archive: decode attributes: %w", err)
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// MarshalJSON renders the record with its decoded attributes.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	evt, err := r.Event()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		plain
		Attributes map[string]string `json:"attributes"`
	}{plain: plain(r), Attributes: evt.Attributes})
}

// Filter narrows archive queries. Zero values match everything.
type Filter struct {
	Type     string
	Contract string
	AssetID  string
	AfterSeq uint64
	Limit    int
}

// Archive persists emitted events with a tamper-evident digest chain.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu   sync.Mutex
	seq  uint64
	head [32]byte
}

// Open connects to dsn. DSNs beginning with postgres:// or postgresql:// use
// PostgreSQL; anything else is handed to SQLite.
func Open(dsn string, log *slog.Logger) (*Archive, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("archive: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle, migrating the schema and loading the
// chain head.
func New(db *gorm.DB, log *slog.Logger) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("archive: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	a := &Archive{db: db, logger: log, nowFn: time.Now}
	var last Record
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("archive: load head: %w", err)
	}
	if last.Seq > 0 {
		head, err := decodeDigest(last.Digest)
		if err != nil {
			return nil, err
		}
		a.seq = last.Seq
		a.head = head
	}
	return a, nil
}

// SetNowFunc overrides the clock used for CreatedAt.
func (a *Archive) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	a.nowFn = now
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged because the engine has
// already committed the operation that produced the event.
func (a *Archive) Emit(evt events.Event) {
	wire := events.Wire(evt)
	if wire == nil {
		return
	}
	if _, err := a.Append(context.Background(), wire); err != nil {
		a.logger.Error("archive append failed", slog.String("type", wire.Type), slog.Any("error", err))
	}
}

// Append stores evt as the next link in the chain.
func (a *Archive) Append(ctx context.Context, evt *types.Event) (Record, error) {
	if evt == nil {
		return Record{}, fmt.Errorf("archive: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return Record{}, fmt.Errorf("archive: encode attributes: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	seq := a.seq + 1
	digest := chainDigest(a.head, seq, evt)
	rec := Record{
		ID:         uuid.New(),
		Seq:        seq,
		Type:       evt.Type,
		Contract:   evt.Attributes["assetContract"],
		AssetID:    evt.Attributes["assetId"],
		Attributes: string(attrs),
		Digest:     hex.EncodeToString(digest[:]),
		CreatedAt:  a.nowFn().UTC(),
	}
	if err := a.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Record{}, fmt.Errorf("archive: insert: %w", err)
	}
	a.seq = seq
	a.head = digest
	return rec, nil
}

// Query returns records matching f in sequence order.
func (a *Archive) Query(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	q := a.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", f.AfterSeq)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Contract != "" {
		q = q.Where("contract = ?", strings.ToLower(f.Contract))
	}
	if f.AssetID != "" {
		q = q.Where("asset_id = ?", f.AssetID)
	}
	var out []Record
	if err := q.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	return out, nil
}

// Head returns the latest sequence number and digest.
func (a *Archive) Head() (uint64, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seq == 0 {
		return 0, ""
	}
	return a.seq, hex.EncodeToString(a.head[:])
}

// Verify recomputes the digest chain over every stored record.
func (a *Archive) Verify(ctx context.Context) error {
	var prev [32]byte
	var after uint64
	for {
		batch, err := a.Query(ctx, Filter{AfterSeq: after, Limit: MaxLimit})
		if err != nil {
			return err
		}
		for _, rec := range batch {
			if rec.Seq != after+1 {
				return fmt.Errorf("%w: expected seq %d, found %d", ErrChainBroken, after+1, rec.Seq)
			}
			evt, err := rec.Event()
			if err != nil {
				return err
			}
			digest := chainDigest(prev, rec.Seq, evt)
			if hex.EncodeToString(digest[:]) != rec.Digest {
				return fmt.Errorf("%w: at seq %d", ErrChainBroken, rec.Seq)
			}
			prev = digest
			after = rec.Seq
		}
		if len(batch) < MaxLimit {
			return nil
		}
	}
}

// chainDigest hashes the previous digest, the sequence number and the event
// with attributes in key order.
func chainDigest(prev [32]byte, seq uint64, evt *types.Event) [32]byte {
	h := blake3.New(32, nil)
	h.Write(prev[:])
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	h.Write(seqBuf[:])
	h.Write([]byte(evt.Type))
	h.Write([]byte{0})
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(evt.Attributes[k]))
		h.Write([]byte{0})
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func decodeDigest(raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("%w: malformed digest %q", ErrChainBroken, raw)
	}
	copy(out[:], decoded)
	return out, nil
}
