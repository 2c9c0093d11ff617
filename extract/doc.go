// Package extract turns raw uploaded or crawled bytes into text.
//
// Extraction never fails. Payloads the extractor recognizes but cannot parse
// degrade to a one-line description so later pipeline stages always receive
// non-empty text. Archives are acknowledged, not unpacked.
package extract
