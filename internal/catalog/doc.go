// Package catalog implements the Census dataset catalog pipeline: feed
// parsing, documentation URL derivation, variables table extraction, and the
// per-dataset crawl that reduces each dataset to its required parameters.
package catalog
