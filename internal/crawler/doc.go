// Package crawler defines the record shapes, collaborator interfaces, and
// error taxonomy shared by the article harvesting pipeline.
package crawler
