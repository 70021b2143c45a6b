// Package indexer keeps embedding vectors in step with the text they were
// built from.
//
// # Basic Usage
//
//	idx := indexer.New(store, &indexer.Config{BatchSize: 32}, logger)
//
//	stats, err := idx.EnsureEmbeddings(ctx, indexer.Request{
//	    Table:        "notes",
//	    TextColumns:  []string{"title", "content"},
//	    VectorColumn: "embedding",
//	}, emb)
//
//	fmt.Printf("embedded %d, skipped %d, coverage %.2f\n",
//	    stats.RowsEmbedded, stats.RowsSkipped, stats.Coverage)
//
// # Pipeline
//
//  1. Resolve text columns: caller order, else registered order, else table
//     declaration order
//  2. Add the vector column if missing and register the column set
//  3. Classify rows: skipped, empty, or pending
//  4. Embed pending rows in batches, several provider calls in flight
//  5. Write each batch in one transaction
//
// # Staleness
//
// Every stored vector has a content hash over the model id, the ordered column
// list and each column's text. A row is pending when it has no vector, its
// vector does not decode or has the wrong dimension, or the stored hash or
// model differs from the current one. Staleness is therefore detected lazily,
// on read, and also eagerly by storage.Upsert which clears the vector when a
// source column changes.
//
// A row whose text changes while its vector is being computed is not written;
// it is counted in RowsStale and stays pending for the next run.
//
// # Provider Failures
//
// Errors from the embedder are returned unchanged. An unavailable provider
// therefore surfaces as types.KindDependencyUnavailable, which the search
// layer recovers from.
package indexer
