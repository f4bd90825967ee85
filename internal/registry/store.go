package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/storage"
)

// ErrExtensionNotFound is returned for mutations on unknown extension ids.
var ErrExtensionNotFound = errors.New("extension not found")

// persisted is the single registry document kept under the storage port.
type persisted struct {
	Preferences map[string]any            `json:"preferences"`
	Counters    map[string]int64          `json:"counters"`
	Extensions  []models.ExtensionRecord  `json:"extensions"`
}

// Store is the durable Registry implementation. All access goes through
// one mutex; the engine has a single writer role per device.
type Store struct {
	kv       storage.KV
	now      func() time.Time
	deviceID string
	mu       sync.Mutex
}

// NewStore creates a registry store for the given device.
func NewStore(kv storage.KV, deviceID string) *Store {
	return &Store{kv: kv, deviceID: deviceID, now: time.Now}
}

// GetAllExtensions implements Registry.
func (s *Store) GetAllExtensions(ctx context.Context) ([]models.ExtensionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.ExtensionRecord, len(doc.Extensions))
	for i := range doc.Extensions {
		out[i] = *doc.Extensions[i].Clone()
	}
	return out, nil
}

// SetExtensionEnabled implements Registry.
func (s *Store) SetExtensionEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}

	rec := findRecord(doc.Extensions, id)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrExtensionNotFound, id)
	}

	rec.Enabled = enabled
	rec.LastModified = s.now().UnixMilli()
	rec.OriginDevice = s.deviceID
	doc.Counters[CounterExtensionToggles]++

	return s.save(ctx, doc)
}

// UpdateExtensionSettings implements Registry.
func (s *Store) UpdateExtensionSettings(ctx context.Context, id string, settings map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}

	rec := findRecord(doc.Extensions, id)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrExtensionNotFound, id)
	}

	if rec.Settings == nil {
		rec.Settings = map[string]any{}
	}
	for k, v := range settings {
		rec.Settings[k] = v
	}
	rec.LastModified = s.now().UnixMilli()
	rec.OriginDevice = s.deviceID
	doc.Counters[CounterSettingsWrites]++

	return s.save(ctx, doc)
}

// InstallExtension implements Registry.
func (s *Store) InstallExtension(ctx context.Context, record models.ExtensionRecord) error {
	if !models.ExtensionIDPattern.MatchString(record.ID) {
		return fmt.Errorf("invalid extension id %q", record.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	if findRecord(doc.Extensions, record.ID) != nil {
		return fmt.Errorf("extension %s already installed", record.ID)
	}

	if record.Settings == nil {
		record.Settings = map[string]any{}
	}
	if record.LastModified == 0 {
		record.LastModified = s.now().UnixMilli()
	}
	if record.OriginDevice == "" {
		record.OriginDevice = s.deviceID
	}
	doc.Extensions = append(doc.Extensions, record)

	return s.save(ctx, doc)
}

// Preferences implements Registry.
func (s *Store) Preferences(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Preferences, nil
}

// SetPreference implements Registry.
func (s *Store) SetPreference(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	doc.Preferences[key] = value
	doc.Counters[CounterSettingsWrites]++
	return s.save(ctx, doc)
}

// Counters implements Registry.
func (s *Store) Counters(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(doc.Counters))
	for k, v := range doc.Counters {
		out[k] = v
	}
	return out, nil
}

// ApplyResolved implements Registry. The merged state replaces extensions
// and preferences wholesale; counters adopt the merged totals so the next
// snapshot reports cluster-wide values.
func (s *Store) ApplyResolved(ctx context.Context, state *models.MergedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}

	exts := make([]models.ExtensionRecord, len(state.Extensions))
	for i := range state.Extensions {
		exts[i] = *state.Extensions[i].Clone()
	}
	doc.Extensions = exts
	doc.Preferences = state.UserPreferences
	for k, v := range state.UsageCounters {
		if v > doc.Counters[k] {
			doc.Counters[k] = v
		}
	}

	return s.save(ctx, doc)
}

func findRecord(exts []models.ExtensionRecord, id string) *models.ExtensionRecord {
	for i := range exts {
		if exts[i].ID == id {
			return &exts[i]
		}
	}
	return nil
}

func (s *Store) load(ctx context.Context) (*persisted, error) {
	data, err := s.kv.Get(ctx, storage.KeyRegistry)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &persisted{
				Extensions:  []models.ExtensionRecord{},
				Preferences: map[string]any{},
				Counters:    map[string]int64{},
			}, nil
		}
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	var doc persisted
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	if doc.Preferences == nil {
		doc.Preferences = map[string]any{}
	}
	if doc.Counters == nil {
		doc.Counters = map[string]int64{}
	}
	return &doc, nil
}

func (s *Store) save(ctx context.Context, doc *persisted) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyRegistry, data); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	return nil
}
