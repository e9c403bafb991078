// Package tags canonicalizes free-form analysis tags against a curated
// vocabulary.
//
// The vocabulary is a YAML file mapping each canonical tag to its aliases.
// Tags are normalized (NFKC, case folded, whitespace collapsed) before lookup.
// Tags with no vocabulary entry are reported as unmapped so they can be
// curated later; they never block persistence. An empty or missing
// vocabulary passes normalized tags through unchanged.
package tags
