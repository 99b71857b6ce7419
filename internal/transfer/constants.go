package transfer

const (
	// ChunkSize is the payload size of every chunk frame except a file's last.
	ChunkSize = 16 * 1024

	DefaultMaxFileSize = 256 * 1024 * 1024
)
