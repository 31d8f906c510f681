package metrics

// CommitLogMetrics provides observability for commit-log readers.
type CommitLogMetrics interface {
	// FragmentsScanned records fragments discovered in a log directory.
	FragmentsScanned(n int)

	// FragmentsSkipped records fragments skipped by the cutoff timestamp.
	FragmentsSkipped(n int)

	// BlockRead records one decompressed block and its payload size.
	BlockRead(codec string, uncompressedBytes int)

	// ReadError records a reader error with its kind ("truncated",
	// "codec", "io").
	ReadError(kind string)
}
