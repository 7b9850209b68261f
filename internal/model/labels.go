package model

import (
	"fmt"
	"os"
	"sort"
)

// LoadLabels returns the sorted names of dir's subdirectories. The order is
// the index order the classifier was trained with.
func LoadLabels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels directory: %w", err)
	}

	labels := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			labels = append(labels, entry.Name())
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels directory %s has no class subdirectories", dir)
	}

	sort.Strings(labels)
	return labels, nil
}
