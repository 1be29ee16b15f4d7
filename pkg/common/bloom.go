package common

// Bloom's-taxonomy level names.
const (
	BloomRemember   = "Remember"
	BloomUnderstand = "Understand"
	BloomApply      = "Apply"
	BloomAnalyze    = "Analyze"
	BloomEvaluate   = "Evaluate"
	BloomCreate     = "Create"
)

// BloomOrder lists Bloom's-taxonomy levels from lowest to highest cognitive
// demand. Knowledge units are generated and compared per level.
var BloomOrder = []string{
	BloomRemember,
	BloomUnderstand,
	BloomApply,
	BloomAnalyze,
	BloomEvaluate,
	BloomCreate,
}

// BloomIndex maps a Bloom level name to its position in BloomOrder.
var BloomIndex = func() map[string]int {
	m := make(map[string]int, len(BloomOrder))
	for i, level := range BloomOrder {
		m[level] = i
	}
	return m
}()

// IsBloomLevel reports whether name is a known Bloom level.
func IsBloomLevel(name string) bool {
	_, ok := BloomIndex[name]
	return ok
}
