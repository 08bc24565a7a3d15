// Package crawler implements the scrape loop that mirrors a WordPress article
// archive: bounded-retry fetching, listing pagination, and the merge of listing
// rows with article pages into records held by an ArticleStore.
package crawler
