// Package domain models civic notices published by municipal and utility
// sources (planned water outages, road closures, construction works, events).
//
// # Data Flow
//
// Upstream crawlers fetch one source each (a utility's outage page, a
// municipality's news feed) and emit SourceDocuments: the raw crawl result
// plus whatever structure the crawler could extract — geometry, categories,
// time spans. The ingestor turns SourceDocuments into Messages, the canonical
// user-facing unit, after deduplication, coordinate normalization, and
// classification. The matcher then compares each new Message against user
// Interests (watched map zones) and records a NotificationMatch per
// (interest, message) pair.
//
// # Coordinates
//
// All coordinates are WGS-84. Every latitude/longitude is rounded to six
// decimal places before persistence (about 11 cm at Sofia's latitude), which
// also collapses near-duplicate points a source lists more than once for the
// same address. GeoJSON positions are [lng, lat] on the wire; LatLng keeps
// the conventional lat-first order in code.
//
// # Identifiers
//
// Message IDs are 8-character base62 slugs drawn at random. The slug doubles
// as the message's storage key and URL path segment. Validity is a pure
// format check ([IsValidSlug]); uniqueness is enforced only at creation time
// by the store's create-if-absent write, with a bounded retry on collision.
//
// # Dedup Keys
//
// A SourceDocument maps to at most one Message. The natural key is
// (sourceType, url, datePublished); documents without a stable URL fall back
// to a SHA-256 hash of their normalized content ([SourceDocument.ContentHash]),
// so re-crawling and re-ingesting the same batch is replay safe.
package domain
