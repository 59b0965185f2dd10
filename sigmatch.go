// Package sigmatch provides a signal ingestion and semantic matching pipeline.
// It discovers candidate news articles from feeds and search APIs, embeds
// them, matches them against per-organization intelligence targets, selects
// a quality-filtered and source-diverse candidate list, and decays the
// salience of stored content over time.
//
// This package contains domain types, interfaces and pure functions.
// Implementations live in subdirectories named after their primary
// dependency (e.g., sqlite/, gemini/, goquery/). Batch jobs live in
// discover/, scrape/, embed/, match/, selector/ and decay/.
package sigmatch
