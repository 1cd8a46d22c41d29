// Package domain implements flood inundation mapping from gauge water levels.
//
// # Stages
//
// A run has three stages, each a pure raster transform over a region's
// read-only [RegionProfile]:
//
//	synthesize  water levels → synthetic SAR backscatter
//	classify    backscatter → standardized anomaly + inundation mask
//	depth       inundation mask + DEM → water depth (optional)
//
// # Synthesis
//
// The region's historical backscatter was decomposed into spatial modes. Each
// mode is driven by one gauge: its regressor maps the gauge level to a
// normalized temporal coefficient, which is de-normalized with the mode's
// mean and standard deviation. The synthetic image is
//
//	Σ_k basis_k × (regressor_k(level_site(k)) × std_k + mean_k) + allMean
//
// # Classification
//
//	anomaly = (synthetic − dryMean) / dryStd
//
// A pixel is wet when its anomaly is strictly below the threshold; equality is
// dry. The threshold comes from the region's threshold model, evaluated on all
// gauge levels in the model's training order. Regions without one fail with
// [ErrThresholdModelUnavailable]; callers may opt into
// [FallbackZScoreThreshold] instead. Pixels where the dry-season mean is
// undefined lie outside the area of interest and are tagged NotApplicable,
// never dry.
//
// # Depth
//
// The DEM is cleaned of spikes with a modified z-score (median/MAD) filter,
// the ring of cells just outside the flood is taken as the water's edge,
// cleaned again, and its elevations are spread over the flood extent with a
// cost-distance interpolation bounded by a push limit. Depth is the smoothed
// difference between that surface and the terrain, clamped at zero.
//
// # Errors
//
// Failures carry a kind from the taxonomy in errors.go plus the region and
// key involved; see [Error] and [ErrorKind].
package domain
