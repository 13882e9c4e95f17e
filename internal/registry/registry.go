// Package registry assembles the full entity descriptor registry the
// stores, sessions and trackers share.
package registry

import (
	"worksafe/internal/entity"
	formsmodels "worksafe/internal/forms/models"
	worksitemodels "worksafe/internal/worksite/models"
)

// Default builds the registry covering every persisted entity type.
func Default() (*entity.Registry, error) {
	descs := worksitemodels.Descriptors()
	descs = append(descs, formsmodels.Descriptors()...)
	return entity.NewRegistry(descs...)
}
