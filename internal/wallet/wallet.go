// Package wallet loads the externally derived address list that supplies
// the orchestrator's work items. The list is read-only: the orchestrator
// never creates or removes addresses, it only marks them per challenge.
package wallet

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mineworks/scavengerd/internal/domain"
)

// addressEntry is one row of the YAML address file.
type addressEntry struct {
	Index      int    `yaml:"index"`
	Address    string `yaml:"address"`
	Registered bool   `yaml:"registered"`
	Fee        bool   `yaml:"fee"`
}

// addressFile is the YAML document layout.
type addressFile struct {
	Addresses []addressEntry `yaml:"addresses"`
}

// Book is the loaded, ordered address list.
type Book struct {
	items []domain.WorkItem
	fee   *domain.WorkItem
}

// Load reads and validates a YAML address file. Ordinary items are returned
// sorted by their stable index; at most one entry may carry the fee flag.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read address file: %w", err)
	}

	var doc addressFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse address YAML: %w", err)
	}

	if len(doc.Addresses) == 0 {
		return nil, domain.NewMinerError(domain.ErrWalletInvalid.Code, "address list is empty")
	}

	seen := make(map[int]bool, len(doc.Addresses))
	book := &Book{}
	for _, e := range doc.Addresses {
		if e.Address == "" {
			return nil, domain.NewMinerError(domain.ErrWalletInvalid.Code,
				fmt.Sprintf("address at index %d is empty", e.Index))
		}
		if seen[e.Index] {
			return nil, domain.NewMinerError(domain.ErrWalletInvalid.Code,
				fmt.Sprintf("duplicate address index %d", e.Index))
		}
		seen[e.Index] = true

		item := domain.WorkItem{
			Index:      e.Index,
			Address:    e.Address,
			Registered: e.Registered,
			Fee:        e.Fee,
		}
		if e.Fee {
			if book.fee != nil {
				return nil, domain.NewMinerError(domain.ErrWalletInvalid.Code,
					"more than one fee address configured")
			}
			fee := item
			book.fee = &fee
			continue
		}
		book.items = append(book.items, item)
	}

	sort.Slice(book.items, func(i, j int) bool {
		return book.items[i].Index < book.items[j].Index
	})

	return book, nil
}

// Items returns the ordinary work items in stable index order.
func (b *Book) Items() []domain.WorkItem {
	return b.items
}

// FeeItem returns the fee work item, or nil when none is configured.
func (b *Book) FeeItem() *domain.WorkItem {
	return b.fee
}
