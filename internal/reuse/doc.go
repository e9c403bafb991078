// Package reuse short-circuits content analysis for media that has already
// been moderated.
//
// A Resolver looks up prior results by content fingerprint: the canonical
// content asset first, then any other completed submission carrying the same
// fingerprint. Active quarantine entries and purged assets block reuse so the
// caller falls through to a fresh analysis. Reuse is purely an optimization;
// a miss never fails the attempt.
package reuse
