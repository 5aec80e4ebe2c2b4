package hstore

import (
	"time"

	"github.com/ValentinKolb/iDict/lib/dict"
	"github.com/ValentinKolb/iDict/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

// --------------------------------------------------------------------------
// Core hstore structure
// --------------------------------------------------------------------------

// storeImpl implements store.IStore on top of a single dict with the
// embedded entry layout: string keys live inline in the entry records,
// values are byte slices.
//
// The dict is single-owner, and even lookups perform a little incremental
// rehash work, so every dict operation runs under the write lock. The
// reader side of the reader-biased lock serves only the pure observer Len,
// which reads the size counters and does no rehash work.
type storeImpl struct {
	mu     *xsync.RBMutex
	d      *dict.Dict
	closed bool

	valueSizes sizeHistogram
	logger     *logrus.Entry

	// operation counters, exported through the metrics set passed in the
	// options
	opsSet           *metrics.Counter
	opsGet           *metrics.Counter
	opsDelete        *metrics.Counter
	rehashStarted    *metrics.Counter
	rehashCompleted  *metrics.Counter
	maintenanceSteps *metrics.Counter
}

// StoreOptions configures the hstore behavior during initialization.
type StoreOptions struct {
	PresizeHint uint64         // Pre-size the dict for this many keys (0 = lazy allocation)
	Metrics     *metrics.Set   // Metrics set to register counters in (nil = private set)
	Logger      *logrus.Logger // Logger for rehash transitions (nil = standard logger)
}

// DefaultOptions returns the default hstore options.
func DefaultOptions() *StoreOptions {
	return &StoreOptions{}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewHashStore creates a new dict-backed store instance with the specified
// options (optional).
//
// Thread-safety: the returned store is safe for concurrent use; this
// function itself should only be called once per store during
// initialization.
func NewHashStore(opts *StoreOptions) store.IStore {
	if opts == nil {
		opts = DefaultOptions()
	}
	set := opts.Metrics
	if set == nil {
		set = metrics.NewSet()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &storeImpl{
		mu:     xsync.NewRBMutex(),
		logger: logger.WithField("component", "hstore"),

		opsSet:           set.GetOrCreateCounter(`hstore_ops_total{op="set"}`),
		opsGet:           set.GetOrCreateCounter(`hstore_ops_total{op="get"}`),
		opsDelete:        set.GetOrCreateCounter(`hstore_ops_total{op="delete"}`),
		rehashStarted:    set.GetOrCreateCounter(`hstore_rehash_started_total`),
		rehashCompleted:  set.GetOrCreateCounter(`hstore_rehash_completed_total`),
		maintenanceSteps: set.GetOrCreateCounter(`hstore_rehash_maintenance_steps_total`),
	}

	typ := &dict.Type{
		Hash: func(key any) uint64 {
			return dict.GenHash(keyBytes(key))
		},
		Compare: func(a, b any) bool {
			return string(keyBytes(a)) == string(keyBytes(b))
		},
		EmbedKey:      embedStringKey,
		EmbeddedEntry: true,
		RehashingStarted: func(d *dict.Dict) {
			s.rehashStarted.Inc()
			if d.IsRehashing() {
				from, to := d.RehashingInfo()
				s.logger.Debugf("rehash started: %d -> %d buckets", from, to)
			}
		},
		RehashingCompleted: func(d *dict.Dict) {
			s.rehashCompleted.Inc()
			s.logger.Debugf("rehash completed: %d entries", d.Size())
		},
	}

	if opts.PresizeHint > 0 {
		s.d = dict.NewPresized(typ, opts.PresizeHint)
	} else {
		s.d = dict.New(typ)
	}
	return s
}

// embedStringKey encodes a string (or []byte) key into the entry's inline
// buffer, prefixed by a two byte little-endian length header.
func embedStringKey(buf []byte, key any) (int, uint8) {
	k := keyBytes(key)
	if len(k) > 0xFFFF {
		panic("hstore: key longer than 65535 bytes")
	}
	if buf == nil {
		return 2 + len(k), 0
	}
	buf[0] = byte(len(k))
	buf[1] = byte(len(k) >> 8)
	copy(buf[2:], k)
	return 2 + len(k), 2
}

// keyBytes accepts the two key forms the dict hands around: the string
// passed by callers and the []byte view of an embedded key.
func keyBytes(key any) []byte {
	switch k := key.(type) {
	case string:
		return []byte(k)
	case []byte:
		return k
	default:
		panic("hstore: unsupported key type")
	}
}

func entryKey(e dict.Entry) string {
	return string(dict.Key(e).([]byte))
}

var errClosed = store.NewError(store.RetCClosed, "store is closed")

// --------------------------------------------------------------------------
// Interface Methods - Write Operations (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	// Copy the value so later caller-side mutation can not corrupt the
	// stored data.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	s.d.Replace(key, valueCopy)
	s.valueSizes.add(len(valueCopy))
	s.opsSet.Inc()
	return nil
}

func (s *storeImpl) SetIfUnset(key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errClosed
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	inserted := s.d.Add(key, valueCopy)
	if inserted {
		s.valueSizes.add(len(valueCopy))
	}
	s.opsSet.Inc()
	return inserted, nil
}

func (s *storeImpl) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errClosed
	}

	deleted := s.d.Delete(key)
	s.opsDelete.Inc()
	return deleted, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get takes the write lock although it is a logical read: a dict lookup
// migrates buckets as a side effect while a rehash is pending.
func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, errClosed
	}

	s.opsGet.Inc()
	e := s.d.Find(key)
	if e == nil {
		return nil, false, nil
	}
	stored := dict.Value(e).([]byte)
	value := make([]byte, len(stored))
	copy(value, stored)
	return value, true, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errClosed
	}
	s.opsGet.Inc()
	return s.d.Find(key) != nil, nil
}

func (s *storeImpl) RandomKey() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, errClosed
	}

	e := s.d.FairRandomEntry()
	if e == nil {
		return "", false, nil
	}
	return entryKey(e), true, nil
}

func (s *storeImpl) RandomKeys(count int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	if count < 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "negative sample count")
	}

	entries := s.d.SomeEntries(uint64(count))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, entryKey(e))
	}
	return keys, nil
}

func (s *storeImpl) Scan(cursor uint64, fn func(key string, value []byte)) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}

	next := s.d.Scan(cursor, func(e dict.Entry) {
		fn(entryKey(e), dict.Value(e).([]byte))
	})
	return next, nil
}

// Len is a pure observer and runs under the reader side of the lock.
func (s *storeImpl) Len() (uint64, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	if s.closed {
		return 0, errClosed
	}
	return s.d.Size(), nil
}

// --------------------------------------------------------------------------
// Maintenance and Metadata
// --------------------------------------------------------------------------

func (s *storeImpl) RehashMaintenance(budget time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}

	steps := s.d.RehashDuration(budget)
	s.maintenanceSteps.Add(steps)
	return steps, nil
}

func (s *storeImpl) GetStoreInfo() (store.StoreInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.StoreInfo{}, errClosed
	}

	main, rehashing := s.d.Stats(true)
	tableStats := main
	if rehashing != nil {
		tableStats.Combine(rehashing)
	}

	// Weighted estimate of the per-value size (60% median, 40% average);
	// the histogram tracks writes, so deleted values still count.
	valueSize := (s.valueSizes.median()*60 + s.valueSizes.average()*40) / 100

	meta := &struct {
		RehashStarted    uint64 `json:"rehash_started"`
		RehashCompleted  uint64 `json:"rehash_completed"`
		MaintenanceSteps uint64 `json:"maintenance_steps"`
		ValueSamples     uint64 `json:"value_samples"`
		Info             string `json:"info"`
	}{
		RehashStarted:    s.rehashStarted.Get(),
		RehashCompleted:  s.rehashCompleted.Get(),
		MaintenanceSteps: s.maintenanceSteps.Get(),
		ValueSamples:     s.valueSizes.samples(),
		Info:             "Size values are estimates and may vary depending on the store state.",
	}

	return store.StoreInfo{
		Len:            s.d.Size(),
		Buckets:        s.d.Buckets(),
		Rehashing:      s.d.IsRehashing(),
		MemUsageBytes:  s.d.MemUsage(),
		ValueSizeBytes: valueSize,
		TableStats:     tableStats,
		Metadata:       meta,
	}, nil
}

func (s *storeImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.d.Release()
	return nil
}
