// Package rag defines the domain types, collaborator interfaces and error
// taxonomy shared by the ingestion pipeline and the query path.
package rag
