package entity

// Sequence is a named monotonic counter — the article_id generator is stored
// as the row {ID: "article_id", Seq: <last issued value>} and incremented
// atomically by the store's NextSequence operation.
type Sequence struct {
	ID  string
	Seq int64
}
