package masking

// Masker is the interface for code-based maskers that need structural
// awareness beyond regex pattern matching (e.g. checksum validation to tell
// a payment card number apart from an order id of the same length).
type Masker interface {
	// Name returns the unique identifier for this masker.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker
	// should process the data. Should be fast (string contains, not parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result.
	// Must be defensive: return original data on processing errors.
	Mask(data string) string
}
