// Package loupe provides an embedded Go client for the loupe dataset
// curation engine: row selection, grouping, schema exploration, signal
// enrichment, embedding indexes, and trained concept models over
// registered datasets.
//
// Datasets load from parquet files, sqlite tables, or in-memory rows:
//
//	client, _ := loupe.New(loupe.WithEmbedder(emb))
//	_ = client.AddParquet("posts", "posts.parquet")
//
// Queries use fluent builders:
//
//	page, _ := client.SelectRows(ctx, "posts",
//	    loupe.NewRowsQuery().
//	        Where("likes", loupe.Greater, 100).
//	        Keyword("text", "launch").
//	        SortBy("likes").Desc().
//	        Limit(50))
//
//	groups, _ := client.SelectGroups(ctx, "posts",
//	    loupe.NewGroupsQuery("author.name").Limit(20))
//
// Semantic and concept search need a prebuilt index:
//
//	_, _ = client.BuildIndex(ctx, "posts", "text")
//	page, _ = client.SelectRows(ctx, "posts",
//	    loupe.NewRowsQuery().Semantic("text", "product launches"))
package loupe
