// Package protocol holds the wire-level helpers for streaming print data
// to BLE printers.
package protocol

// DefaultChunkSize is the largest write most BLE printer bridges accept
// without dropping bytes.
const DefaultChunkSize = 150

// ChunkBytes splits data into consecutive slices of at most size bytes.
// The chunks alias data; concatenated they equal data exactly. Returns nil
// for empty data or a non-positive size.
func ChunkBytes(data []byte, size int) [][]byte {
	if len(data) == 0 || size <= 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > 0 {
		n := size
		if len(data) < n {
			n = len(data)
		}
		chunks = append(chunks, data[:n:n])
		data = data[n:]
	}
	return chunks
}
