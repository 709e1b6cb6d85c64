package analysis

import (
	"github.com/hed1ad/energyguard/pkg/detectors"
	"github.com/hed1ad/energyguard/pkg/detectors/autoencoder"
	"github.com/hed1ad/energyguard/pkg/detectors/iforest"
	"github.com/hed1ad/energyguard/pkg/detectors/kmeans"
)

// DefaultRegistry registers the three built-in algorithms with density as
// the fallback. Reconstruction is available unless the binary was built
// with the noautoencoder tag.
func DefaultRegistry() *detectors.Registry {
	r := detectors.NewRegistry(detectors.Density)

	r.Register(detectors.Strategy{
		Algorithm: detectors.Density,
		New: func(seed int64) detectors.Detector {
			return iforest.New(iforest.WithSeed(seed))
		},
	})
	r.Register(detectors.Strategy{
		Algorithm: detectors.Cluster,
		New: func(seed int64) detectors.Detector {
			return kmeans.New(kmeans.WithSeed(seed))
		},
	})
	r.Register(detectors.Strategy{
		Algorithm: detectors.Reconstruction,
		New: func(seed int64) detectors.Detector {
			return autoencoder.New(autoencoder.WithSeed(seed))
		},
		Available: autoencoder.Available,
	})

	return r
}
