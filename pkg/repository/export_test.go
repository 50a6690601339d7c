package repository

var (
	ClassifyForTest       = classify
	ParseQdrantURLForTest = parseQdrantURL
	CosineForTest         = cosine
)
