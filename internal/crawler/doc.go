// Package crawler holds the record model and the incremental capture pipeline.
//
// A run loads the dataset, harvests every index page, diffs the remote
// listing against the dataset and the local raw/converted directories, then
// downloads, converts and extracts each missing document on a bounded worker
// pool. Extracted records are appended to the dataset in fixed-size chunks;
// the dataset is the only source of truth for what has been captured, so a
// crashed or interrupted run is resumed by simply running again.
package crawler
