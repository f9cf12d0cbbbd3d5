// Package seed loads operator item lists from YAML files.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/versus/internal/domain/model"
)

// Errors returned while reading seed files.
var (
	ErrEmptyFile = errors.New("seed file has no items")
	ErrBadEntry  = errors.New("invalid seed entry")
)

// Entry is one item in a seed file.
type Entry struct {
	ListID   int64   `yaml:"list_id"`
	Name     string  `yaml:"name"`
	Category string  `yaml:"category"`
	Year     *int    `yaml:"year"`
	Rating   float64 `yaml:"rating"`
}

// File is the document layout:
//
//	items:
//	  - list_id: 2
//	    name: Moon landing
//	    category: Space
//	    year: 1969
type File struct {
	// DefaultList applies to entries without a list_id.
	DefaultList int64   `yaml:"default_list"`
	Items       []Entry `yaml:"items"`
}

// Seeder stores approved operator items.
type Seeder interface {
	SeedItem(ctx context.Context, item model.Item) (model.Item, error)
}

// Result summarizes an Apply run.
type Result struct {
	Seeded int
	Lists  map[model.ListID]int
}

// Parse decodes a seed document into items ready for SeedItem.
func Parse(r io.Reader) ([]model.Item, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, ErrEmptyFile
	}

	items := make([]model.Item, 0, len(f.Items))
	for i, e := range f.Items {
		list := e.ListID
		if list == 0 {
			list = f.DefaultList
		}
		name := strings.TrimSpace(e.Name)
		switch {
		case list <= 0:
			return nil, fmt.Errorf("%w: item %d: list_id must be positive", ErrBadEntry, i)
		case name == "":
			return nil, fmt.Errorf("%w: item %d: name is required", ErrBadEntry, i)
		case e.Rating < 0:
			return nil, fmt.Errorf("%w: item %d: rating must not be negative", ErrBadEntry, i)
		}
		category := strings.TrimSpace(e.Category)
		if category == "" {
			category = model.DefaultCategory
		}
		items = append(items, model.Item{
			ListID:   model.ListID(list),
			Name:     name,
			Category: category,
			Year:     e.Year,
			Rating:   e.Rating,
		})
	}
	return items, nil
}

// LoadFile parses the seed file at path.
func LoadFile(path string) ([]model.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Apply seeds items in order. Seeding is idempotent per normalized name, so
// re-running a file leaves existing items untouched.
func Apply(ctx context.Context, st Seeder, items []model.Item) (Result, error) {
	res := Result{Lists: make(map[model.ListID]int)}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := st.SeedItem(ctx, it); err != nil {
			return res, fmt.Errorf("seed %q: %w", it.Name, err)
		}
		res.Seeded++
		res.Lists[it.ListID]++
	}
	return res, nil
}
