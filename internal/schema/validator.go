package schema

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Aman-CERP/searchschema/internal/descriptor"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/mapping"
)

// Validator computes the fields that can be appended to live mappings.
type Validator struct {
	logger *slog.Logger
	cache  *mapping.Cache
}

// NewValidator creates a validator. A nil logger uses slog.Default().
func NewValidator(logger *slog.Logger, cache *mapping.Cache) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = mapping.NewCache(mapping.DefaultCacheSize)
	}
	return &Validator{logger: logger, cache: cache}
}

// matches reports whether the live resource name belongs to d. Templates
// are stored under one exact name; plain indices may exist in several
// versions.
func matches(d descriptor.Descriptor, liveName string) bool {
	if t, ok := d.(*descriptor.Template); ok {
		return liveName == t.TemplateName()
	}
	return d.AllVersionsPattern().MatchString(liveName)
}

// ValidateIndexMappings compares every descriptor against the live mappings
// that belong to it and returns the new fields per descriptor. Descriptors
// without a live counterpart are skipped; creating them is the manager's
// job. Drift that cannot be migrated by appending fields is returned as a
// validation error.
func (v *Validator) ValidateIndexMappings(live map[string]mapping.IndexMapping, descs []descriptor.Descriptor) (map[descriptor.Descriptor][]mapping.Property, error) {
	names := make([]string, 0, len(live))
	for name := range live {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[descriptor.Descriptor][]mapping.Property)
	for _, d := range descs {
		var matched []string
		for _, name := range names {
			if matches(d, name) {
				matched = append(matched, name)
			}
		}
		if len(matched) == 0 {
			continue
		}

		desired, err := v.cache.Desired(d)
		if err != nil {
			return nil, schemaerrors.New(schemaerrors.ErrCodeInvalidDescriptor, "descriptor schema is unreadable", err).
				WithDetail("descriptor", d.QualifiedName())
		}

		diff, err := v.distinctDiff(d, &desired, live, matched)
		if err != nil {
			return nil, err
		}
		if diff == nil {
			continue
		}

		fields, err := v.classify(d, *diff)
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			out[d] = fields
		}
	}
	return out, nil
}

// distinctDiff diffs desired against every matched live mapping and returns
// the single non-equal difference, nil when all are in sync, or an error
// when the live mappings disagree among themselves.
func (v *Validator) distinctDiff(d descriptor.Descriptor, desired *mapping.IndexMapping, live map[string]mapping.IndexMapping, matched []string) (*mapping.Difference, error) {
	seen := make(map[string]bool)
	var distinct []mapping.Difference
	var owners []string
	for _, name := range matched {
		m := live[name]
		diff := mapping.Diff(desired, &m)
		if diff.Equal {
			continue
		}
		key := diff.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		distinct = append(distinct, diff)
		owners = append(owners, name)
	}

	switch len(distinct) {
	case 0:
		return nil, nil
	case 1:
		return &distinct[0], nil
	}

	lines := make([]string, len(distinct))
	for i, diff := range distinct {
		lines[i] = fmt.Sprintf("%s: %s", owners[i], diff)
	}
	return nil, schemaerrors.ValidationError(schemaerrors.ErrCodeSchemaAmbiguous,
		fmt.Sprintf("ambiguous schema for %s: %d live mappings differ from the descriptor in different ways", d.QualifiedName(), len(distinct))).
		WithDetail("descriptor", d.QualifiedName()).
		WithDetail("differences", strings.Join(lines, " | ")).
		WithSuggestion("reindex or delete the divergent indices so they share one mapping")
}

// classify applies the migration policy to a single difference.
func (v *Validator) classify(d descriptor.Descriptor, diff mapping.Difference) ([]mapping.Property, error) {
	if len(diff.Differing) > 0 {
		if !diff.LeftDynamic && !diff.RightDynamic {
			return nil, schemaerrors.ValidationError(schemaerrors.ErrCodeSchemaIncompatible,
				fmt.Sprintf("incompatible field types for %s: %s", d.QualifiedName(), diff)).
				WithDetail("descriptor", d.QualifiedName()).
				WithDetail("fields", strings.Join(differingNames(diff.Differing), ",")).
				WithSuggestion("field type changes need a manual reindex into a new index version")
		}
		v.logger.Warn("schema_validation_ignored_type_change",
			slog.String("descriptor", d.QualifiedName()),
			slog.String("fields", strings.Join(differingNames(diff.Differing), ",")),
			slog.Bool("left_dynamic", diff.LeftDynamic),
			slog.Bool("right_dynamic", diff.RightDynamic))
	}

	if len(diff.OnlyOnRight) > 0 {
		v.logger.Info("schema_validation_ignored_deletion",
			slog.String("descriptor", d.QualifiedName()),
			slog.String("fields", strings.Join(mapping.Names(diff.OnlyOnRight), ",")))
		return nil, nil
	}

	return diff.OnlyOnLeft, nil
}

func differingNames(diffs []mapping.PropertyDifference) []string {
	out := make([]string, len(diffs))
	for i, d := range diffs {
		out[i] = d.Name
	}
	return out
}
