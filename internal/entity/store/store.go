// Package store defines the entity-agnostic persistence contract shared by
// the memory and postgres implementations.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"

	"github.com/google/uuid"

	"worksafe/internal/entity"
)

// Options modify read behavior.
type Options struct {
	// IncludeArchived lets opt-in callers read soft-archived rows.
	IncludeArchived bool
}

// Option is a functional read option.
type Option func(*Options)

// WithArchived includes soft-archived rows in the read.
func WithArchived() Option {
	return func(o *Options) { o.IncludeArchived = true }
}

// Apply folds options into an Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Filter bounds a List call. Conditions are column equality matches against
// the encoded column values; pagination is cursor-style on id ascending.
type Filter struct {
	Type            entity.Type
	Conditions      map[string]any
	AfterID         uuid.UUID
	Limit           int
	IncludeArchived bool
}

// Reader is the read side of the entity store. The tenant is implicit in the
// calling context; rows of other tenants are indistinguishable from absent
// rows.
type Reader interface {
	Get(ctx context.Context, ref entity.Ref, opts ...Option) (entity.Record, error)
	List(ctx context.Context, f Filter) ([]entity.Record, error)
}

// MatchConditions reports whether a column snapshot satisfies all equality
// conditions. Values are normalized through JSON so typed IDs, strings and
// numbers compare consistently with encoded columns.
func MatchConditions(cols map[string]any, conditions map[string]any) bool {
	for col, want := range conditions {
		if !reflect.DeepEqual(Normalize(want), Normalize(cols[col])) {
			return false
		}
	}
	return true
}

// Normalize round-trips a value through JSON into the generic encoding the
// column codec produces.
func Normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}
