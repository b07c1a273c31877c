package topology

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Filter narrows a crawl. A nil field does not filter.
type Filter struct {
	// ByEligibility keeps only hosts whose root access equals the value.
	ByEligibility *bool
	// ByNamePredicate keeps only hosts it returns true for.
	ByNamePredicate func(name string) bool
}

type Option func(*Filter) error

// Rooted keeps hosts with (true) or without (false) root access.
func Rooted(rooted bool) Option {
	return func(f *Filter) error {
		if f.ByEligibility != nil {
			return errors.New("eligibility filter set twice")
		}
		f.ByEligibility = &rooted
		return nil
	}
}

func NamePredicate(pred func(string) bool) Option {
	return func(f *Filter) error {
		if pred == nil {
			return errors.New("name predicate must not be nil")
		}
		if f.ByNamePredicate != nil {
			return errors.New("name predicate set twice")
		}
		f.ByNamePredicate = pred
		return nil
	}
}

func NewFilter(opts ...Option) (Filter, error) {
	var f Filter
	var result *multierror.Error
	for _, opt := range opts {
		if err := opt(&f); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return Filter{}, errors.Wrap(err, "invalid crawl filter")
	}
	return f, nil
}

func (f Filter) keep(g Graph, name string) bool {
	if f.ByEligibility != nil && g.HasRootAccess(name) != *f.ByEligibility {
		return false
	}
	if f.ByNamePredicate != nil && !f.ByNamePredicate(name) {
		return false
	}
	return true
}
