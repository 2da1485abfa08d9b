// Package integrity checks that child records reference surviving parents.
package integrity

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// KeySet is the set of primary keys of a finalized parent entity.
type KeySet struct {
	keys map[string]struct{}
}

func NewKeySet(keys ...string) *KeySet {
	ks := &KeySet{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		ks.Add(k)
	}
	return ks
}

// Add ignores empty keys.
func (k *KeySet) Add(key string) {
	if key == "" {
		return
	}
	k.keys[key] = struct{}{}
}

func (k *KeySet) Contains(key string) bool {
	if k == nil {
		return false
	}
	_, ok := k.keys[key]
	return ok
}

func (k *KeySet) Len() int {
	if k == nil {
		return 0
	}
	return len(k.keys)
}

// LoadKeySet reads the named column from a parent's clean artifact.
func LoadKeySet(path, column string) (*KeySet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parent artifact: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	idx := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found in %s", column, path)
	}

	ks := NewKeySet()
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if idx < len(row) {
			ks.Add(strings.TrimSpace(row[idx]))
		}
	}
	return ks, nil
}

// Check partitions children into those whose foreign key resolves in parents
// and those that do not. Violators are tagged FK_VIOLATION. Order is preserved
// in both partitions.
func Check[T any](children []T, parents *KeySet, fk func(T) string, flags func(T) *models.Flags) (valid, violators []T) {
	for _, child := range children {
		if parents.Contains(fk(child)) {
			valid = append(valid, child)
			continue
		}
		flags(child).Add(models.FlagForeignKeyViolation)
		violators = append(violators, child)
	}
	return valid, violators
}
