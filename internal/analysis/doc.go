// Package analysis implements the playlist genre analysis pipeline.
//
// Genres live on artists, not tracks, so an analysis bridges the two in four steps:
//
//  1. [Pages] / [FetchAll] : follow a cursor-paginated listing to the end
//  2. [Projector] : normalize raw playlist items into [models.TrackRecord] and collect distinct artist ids
//  3. [Resolver] : look up artist genres in batches of at most [MaxArtistBatch]
//  4. [Aggregate] : give each track the union of its artists' genres and rank genres by track count
//
// [Analyzer] wires the steps together for a single catalog credential.
//
// # Pagination
//
// [Pages] is a lazy, restartable [iter.Seq2] of pages; nothing is fetched until it is ranged over, and each range
// starts from the first page. The analyzer projects each page as it arrives. A repeated cursor is reported as
// [ErrCursorLoop] rather than followed forever.
//
// # Skipped Items
//
// Playlist entries without a track (removed or unavailable), podcast episodes and tracks without artists are
// dropped silently and count toward no metric. Artists without an id, such as those on local files, keep their name
// on the track but are never looked up.
//
// # Concurrency
//
// Pages are fetched one after another since each cursor comes from the previous page. Artist batches are
// independent: with [Resolver.Concurrency] above one they run through an [errgroup.Group] and the first failure
// cancels the rest. The result does not depend on completion order.
//
// # Progress Reporting
//
// [Analyzer.Analyze] emits [ProgressUpdate] values on an optional channel. Sends never block; updates are dropped
// when the channel is full.
package analysis
