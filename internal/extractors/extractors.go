// Package extractors assembles the registry of all native metadata
// extractors.
package extractors

import (
	"github.com/datalad/datalad-neuroimaging/internal/config"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/bids"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/bidsdataset"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/dicom"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/fslfeat"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/minc"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/nidm"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/nidmresults"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/nifti1"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Registry returns a registry holding every extractor, configured from cfg.
// A nil cfg uses the defaults.
func Registry(cfg *config.Config) *metadata.Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	return metadata.NewRegistry(
		dicom.New(cfg.DICOM.MaxFieldSize),
		bids.New(),
		bidsdataset.New(),
		nifti1.New(),
		minc.New(),
		nidmresults.New(),
		nidm.New(),
		fslfeat.New(),
	)
}
