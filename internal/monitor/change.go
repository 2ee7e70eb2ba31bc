package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

// ChangeType identifies what kind of change occurred.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change represents one difference for a product between two crawls.
type Change struct {
	ProductID string     `json:"product_id"`
	URL       string     `json:"url"`
	Name      string     `json:"name"`
	Type      ChangeType `json:"type"`
	Field     string     `json:"field,omitempty"`
	OldValue  string     `json:"old_value,omitempty"`
	NewValue  string     `json:"new_value,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// snapshot is the stored state of one product.
type snapshot struct {
	URL    string            `json:"url"`
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields"`
}

// ChangeDetector compares a crawl's products against the previous crawl of
// the same seed host. Snapshots are one JSON file per host.
type ChangeDetector struct {
	snapshotDir string
	logger      *slog.Logger
	mu          sync.Mutex
}

// NewChangeDetector creates a new change detector.
func NewChangeDetector(snapshotDir string, logger *slog.Logger) (*ChangeDetector, error) {
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &ChangeDetector{
		snapshotDir: snapshotDir,
		logger:      logger.With("component", "change_detector"),
	}, nil
}

// Detect diffs result against the last snapshot and replaces the snapshot.
// The first crawl of a host reports every product as added.
func (cd *ChangeDetector) Detect(result *types.CrawlResult) ([]Change, error) {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	path := cd.snapshotPath(result.Seed)
	old, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	current := make(map[string]snapshot, len(result.Products))
	for i := range result.Products {
		p := &result.Products[i]
		current[p.ID] = snapshot{URL: p.PageURL, Name: p.Name, Fields: productFields(p)}
	}

	var changes []Change
	for _, id := range sortedKeys(current) {
		cur := current[id]
		prev, ok := old[id]
		if !ok {
			changes = append(changes, Change{ProductID: id, URL: cur.URL, Name: cur.Name, Type: ChangeAdded, Timestamp: now})
			continue
		}
		for _, field := range sortedKeys(cur.Fields) {
			if prev.Fields[field] == cur.Fields[field] {
				continue
			}
			changes = append(changes, Change{
				ProductID: id,
				URL:       cur.URL,
				Name:      cur.Name,
				Type:      ChangeModified,
				Field:     field,
				OldValue:  truncateStr(prev.Fields[field], 200),
				NewValue:  truncateStr(cur.Fields[field], 200),
				Timestamp: now,
			})
		}
	}
	for _, id := range sortedKeys(old) {
		if _, ok := current[id]; !ok {
			prev := old[id]
			changes = append(changes, Change{ProductID: id, URL: prev.URL, Name: prev.Name, Type: ChangeRemoved, Timestamp: now})
		}
	}

	if err := saveSnapshot(path, current); err != nil {
		return changes, err
	}
	cd.logger.Info("changes detected", "seed", result.Seed, "products", len(current), "changes", len(changes))
	return changes, nil
}

// productFields are the tracked values of a product.
func productFields(p *types.ProductRecord) map[string]string {
	fields := map[string]string{
		"name":         p.Name,
		"availability": p.Availability,
	}
	if p.MainPrice != nil {
		fields["main_price"] = strings.TrimSpace(p.MainPrice.Amount.String() + " " + p.MainPrice.Currency)
	} else {
		fields["main_price"] = ""
	}
	for _, q := range p.Prices {
		if q.Kind == types.PriceCompareAt {
			fields["compare_at"] = strings.TrimSpace(q.Amount.String() + " " + q.Currency)
			break
		}
	}
	if _, ok := fields["compare_at"]; !ok {
		fields["compare_at"] = ""
	}
	return fields
}

func loadSnapshot(path string) (map[string]snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var products map[string]snapshot
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return products, nil
}

func saveSnapshot(path string, products map[string]snapshot) error {
	return writeJSON(path, products)
}

// SaveChanges writes changes as an indented JSON array.
func SaveChanges(path string, changes []Change) error {
	if changes == nil {
		changes = []Change{}
	}
	return writeJSON(path, changes)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// snapshotPath keys snapshots by seed so every store keeps its own history.
func (cd *ChangeDetector) snapshotPath(seed string) string {
	hash := sha256.Sum256([]byte(seed))
	return filepath.Join(cd.snapshotDir, hex.EncodeToString(hash[:8])+".json")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Summary counts changes by type.
func Summary(changes []Change) map[ChangeType]int {
	out := make(map[ChangeType]int, 3)
	for _, c := range changes {
		out[c.Type]++
	}
	return out
}
