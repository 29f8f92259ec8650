// Package vectorstore groups the rag.VectorStore backends: an in-memory
// cosine index (memory), pgvector on Postgres (postgres) and the Qdrant REST
// API (qdrant).
package vectorstore
