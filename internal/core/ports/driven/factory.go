package driven

// VectorIndexFactory builds an empty, throwaway vector index. Ablation
// sweeps use it to index a re-segmented corpus without touching the
// live index; the caller owns the returned index and must Close it.
type VectorIndexFactory func() (VectorIndex, error)
