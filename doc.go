// Package pawprint identifies an individual dog from a photo.
//
// It builds a store of (embedding, identity) pairs from a dataset of
// photos, persists it as a single self-describing snapshot, and matches new
// photos against the loaded snapshot under an explicit acceptance policy.
//
// # Quick Start
//
// Build a snapshot from a directory laid out as <root>/<dog-id>/<photo>:
//
//	model := extract.NewModelHandle(extract.NewGridModel())
//	ex := extract.NewExtractor(model)
//
//	b, _ := pawprint.NewBuilder(ex, persistence.NewLocalTarget("./catalog.paw"),
//	    pawprint.WithMetric(distance.MetricDot),
//	    pawprint.WithNormalize(true),
//	)
//	res, _ := b.Build(ctx, dataset.Dir("./photos"))
//	fmt.Println(res.Count, res.Skipped)
//
// Serve matches from it:
//
//	eng, _ := pawprint.Open(ctx, ex, persistence.NewLocalTarget("./catalog.paw"))
//	m, _ := eng.MatchByImage(ctx, photo)
//	if m.Found() {
//	    fmt.Println(m.IdentityID, m.Score)
//	}
//
// # Acceptance policy
//
// With MetricDot on normalized vectors (cosine similarity) a match is
// accepted iff its score is at least Policy.MinSimilarity (default 0.8).
// With MetricL2 a match is accepted iff its squared distance is at most
// Policy.MaxDistance. Distance mode has no universal scale, so an engine
// without MaxDistance refuses to start unless Policy.AcceptNearest is set.
//
// A query that clears no threshold returns NoMatch, never an error.
//
// # Consistency
//
// Vectors and identities are positionally aligned. The builder appends
// both in one step from a single goroutine, every backend checks the
// alignment after each append and on load, and snapshots carry both counts
// in their header. Any mismatch is a *ConsistencyError and the snapshot is
// not served.
package pawprint
