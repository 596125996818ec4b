// Package staging reads raw files staged on local disk for bulk import.
package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/cloudnet/internal/domain"
)

// ManifestFileName is the JSONL manifest file name in a staging directory.
const ManifestFileName = "manifest.jsonl"

// ManifestItem is one line of manifest.jsonl.
type ManifestItem struct {
	Filename        string `json:"filename"`
	Site            string `json:"site"`
	MeasurementDate string `json:"measurementDate"`
	Instrument      string `json:"instrument,omitempty"`
	Model           string `json:"model,omitempty"`
}

// Item is a staged raw file ready for submission.
type Item struct {
	ManifestItem
	LocalPath string
}

// Adapter walks a staging directory in manifest order.
type Adapter struct {
	basePath string
	items    []Item
	skipped  int
	loaded   bool
}

// NewAdapter creates a new staging adapter.
func NewAdapter(basePath string) *Adapter {
	return &Adapter{basePath: basePath}
}

// FetchBatch returns up to limit staged items starting at cursor, and the
// cursor of the next batch, empty when exhausted.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]Item, string, error) {
	if err := a.ensureLoaded(); err != nil {
		return nil, "", err
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
	}
	if startIndex >= len(a.items) {
		return []Item{}, "", nil
	}

	endIndex := startIndex + limit
	if endIndex > len(a.items) {
		endIndex = len(a.items)
	}

	nextCursor := ""
	if endIndex < len(a.items) {
		nextCursor = strconv.Itoa(endIndex)
	}
	return a.items[startIndex:endIndex], nextCursor, nil
}

// GetTotalCount returns the number of usable staged items.
func (a *Adapter) GetTotalCount() (int, error) {
	if err := a.ensureLoaded(); err != nil {
		return 0, err
	}
	return len(a.items), nil
}

// Skipped returns the number of manifest lines that were unusable.
func (a *Adapter) Skipped() int {
	return a.skipped
}

func (a *Adapter) ensureLoaded() error {
	if a.loaded {
		return nil
	}
	if err := a.loadItems(); err != nil {
		return fmt.Errorf("failed to load staging items: %w", err)
	}
	a.loaded = true
	return nil
}

func (a *Adapter) loadItems() error {
	manifestPath := filepath.Join(a.basePath, ManifestFileName)
	file, err := os.Open(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("manifest file not found: %s", manifestPath)
		}
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	a.items = []Item{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var m ManifestItem
		if err := json.Unmarshal([]byte(line), &m); err != nil || !m.valid() {
			a.skipped++
			continue
		}
		localPath := filepath.Join(a.basePath, filepath.Clean("/"+m.Filename))
		if _, err := os.Stat(localPath); err != nil {
			a.skipped++
			continue
		}
		a.items = append(a.items, Item{ManifestItem: m, LocalPath: localPath})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}

	sort.SliceStable(a.items, func(i, j int) bool {
		if a.items[i].MeasurementDate != a.items[j].MeasurementDate {
			return a.items[i].MeasurementDate < a.items[j].MeasurementDate
		}
		return a.items[i].Filename < a.items[j].Filename
	})
	return nil
}

func (m ManifestItem) valid() bool {
	if m.Filename == "" || m.Site == "" {
		return false
	}
	if _, err := domain.ParseDate(m.MeasurementDate); err != nil {
		return false
	}
	// Exactly one of instrument and model names the file.
	return (m.Instrument == "") != (m.Model == "")
}

// ListStagingSources lists the subdirectories of basePath that carry a
// manifest. A missing basePath yields an empty list.
func ListStagingSources(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	sources := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(basePath, entry.Name(), ManifestFileName)); err == nil {
			sources = append(sources, entry.Name())
		}
	}
	return sources, nil
}
