// Package internal contains the implementation packages for svgrender.
//
// # Package Organization
//
//   - assetname: the published filename rule and request path parsing
//   - catalog: discovery of SVG sources and the atomically swapped snapshot
//   - fingerprint: BLAKE3 content digests and filename fragments
//   - renderer: SVG rasterization and PNG optimization
//   - manifest: the scale to name to URL mapping and its encodings
//   - publish: parallel rendering of a catalog into an output directory
//   - watcher: recursive file system watching filtered by the glob
//   - invalidation: catalog rebuilds and browser reloads on source changes
//   - server: the dev server, asset handler and reload hub
//   - config, logging, errors, metrics, version: shared infrastructure
//
// # Data Flow
//
// The build command hashes every source, publishes each (entry, scale) pair
// through the renderer and writes the manifest. The serve command keeps an
// unhashed catalog in a Store; the asset handler renders on request against
// the snapshot it loaded, while the invalidation controller swaps in a new
// catalog each time the watcher reports a change.
package internal
