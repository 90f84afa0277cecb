// Export internal functions for testing
package store

// EncodeTag exports encodeTag for testing
func EncodeTag(barcode string) uint32 {
	tag, _ := encodeTag([]byte(barcode))
	return tag
}

// DecodeHeader exports decodeHeader for testing
func DecodeHeader(buf []byte) (*Header, error) {
	return decodeHeader(buf)
}
