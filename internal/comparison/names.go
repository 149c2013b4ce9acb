package comparison

import (
	"fmt"
	"strings"

	"github.com/sylwekczmil/cacp/internal/models"
)

// UniqueNames keeps the first occurrence of every name and suffixes later
// duplicates with " (2)", " (3)" and so on.
func UniqueNames(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, name := range names {
		taken[name] = true
	}

	counts := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		counts[name]++
		if counts[name] == 1 {
			out[i] = name
			continue
		}
		n := counts[name]
		candidate := fmt.Sprintf("%s (%d)", name, n)
		for taken[candidate] {
			n++
			candidate = fmt.Sprintf("%s (%d)", name, n)
		}
		taken[candidate] = true
		counts[name] = n
		out[i] = candidate
	}
	return out
}

// UniqueSafeNames passes every name through SafeName first, so two names
// never share a result path.
func UniqueSafeNames(names []string) []string {
	safe := make([]string, len(names))
	for i, name := range names {
		safe[i] = SafeName(name)
	}
	return UniqueNames(safe)
}

// UniqueDescriptors applies UniqueSafeNames to the classifier display names.
func UniqueDescriptors(descriptors []models.Descriptor) []models.Descriptor {
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}
	out := make([]models.Descriptor, len(descriptors))
	for i, name := range UniqueSafeNames(names) {
		out[i] = descriptors[i]
		out[i].Name = name
	}
	return out
}

// SafeName makes a display name safe to use as one path element.
func SafeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return replacer.Replace(strings.TrimSpace(name))
}
