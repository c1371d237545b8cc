// Package extract turns image bytes into embeddings.
//
// The pipeline has three parts:
//
//   - Decoder decodes JPEG, PNG, GIF, WebP, BMP and TIFF into a canonical
//     *image.RGBA grid.
//   - Model is the feature model. It is loaded once, held by a ModelHandle
//     and hot-swapped with ModelHandle.Swap.
//   - Extractor combines both, bounds concurrent inference, collapses
//     concurrent requests for identical bytes and caches results per model
//     version.
//
// Every decode or model failure surfaces as *ExtractionError so callers can
// skip the image (build) or report it (query).
package extract
