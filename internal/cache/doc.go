// Package cache implements the cache-aside layer of the pipeline: content-addressed
// fingerprints over (document reference, question) and an AnswerCache that reads and
// writes answers with a fixed TTL on top of any key/value backend.
//
// No client-side locking is performed. Two workers that miss on the same fingerprint
// concurrently both generate and both write; generation is treated as stateless, so the
// last write wins.
package cache
