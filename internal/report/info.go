package report

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sylwekczmil/cacp/internal/data"
	"github.com/sylwekczmil/cacp/internal/models"
)

// DatasetInfo writes info/datasets.csv and .tex. An Origin column is added
// when any dataset describes where it comes from.
func DatasetInfo(datasets []data.Dataset, dir string) (*Table, error) {
	t := &Table{
		Caption: "Datasets used for comparison",
		Label:   "tab:datasets",
		Header:  []string{"Dataset", "Instances", "Features", "Classes"},
	}

	withOrigin := false
	for _, ds := range datasets {
		if d, ok := ds.(data.Describer); ok && d.Origin() != "" {
			withOrigin = true
			break
		}
	}
	if withOrigin {
		t.Header = append(t.Header, "Origin")
	}

	for _, ds := range datasets {
		row := []string{
			ds.Name(),
			strconv.Itoa(ds.Instances()),
			strconv.Itoa(ds.Features()),
			strconv.Itoa(ds.Classes()),
		}
		if withOrigin {
			origin := ""
			if d, ok := ds.(data.Describer); ok {
				origin = d.Origin()
			}
			row = append(row, origin)
		}
		t.Append(row...)
	}
	return t, t.Write(filepath.Join(dir, "info"), "datasets")
}

// StreamInfo writes info/datasets.csv and .tex for incremental streams,
// reading each stream once to count samples and classes.
func StreamInfo(ctx context.Context, streams []data.Stream, dir string) (*Table, error) {
	t := &Table{
		Caption: "Datasets used for incremental comparison",
		Label:   "tab:datasets",
		Header:  []string{"Dataset", "Instances", "Labeled", "Features", "Classes"},
	}
	for _, s := range streams {
		info, err := data.Describe(ctx, s)
		if err != nil {
			return nil, err
		}
		t.Append(
			s.Name(),
			strconv.Itoa(info.Samples),
			strconv.Itoa(info.Labeled),
			strconv.Itoa(s.Features()),
			strconv.Itoa(len(info.Labels)),
		)
	}
	return t, t.Write(filepath.Join(dir, "info"), "datasets")
}

func classifierType(kind models.Kind) string {
	if kind == models.Incremental {
		return "incremental"
	}
	return "offline"
}

// ClassifierInfo writes info/classifiers.csv and .tex, one row per distinct
// classifier name, grouped by type.
func ClassifierInfo(descriptors []models.Descriptor, dir string) (*Table, error) {
	seen := make(map[string]bool)
	var unique []models.Descriptor
	for _, d := range descriptors {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		unique = append(unique, d)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		ti, tj := classifierType(unique[i].Kind), classifierType(unique[j].Kind)
		if ti != tj {
			return ti < tj
		}
		return unique[i].Name < unique[j].Name
	})

	t := &Table{
		Caption: "Classifiers used for comparison",
		Label:   "tab:classifiers",
		Header:  []string{"Acronym", "Name", "Library", "Type"},
	}
	for _, d := range unique {
		title := d.Title
		if title == "" {
			title = d.Name
		}
		t.Append(d.Name, title, d.Library, classifierType(d.Kind))
	}
	return t, t.Write(filepath.Join(dir, "info"), "classifiers")
}
