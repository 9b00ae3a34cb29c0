package exploit

import "errors"

var (
	errBatchingMutuallyExclusive = errors.New("exploit: batching.size and batching.count are mutually exclusive")
	errLastNRequired             = errors.New("exploit: tick_scope \"last_n\" requires a positive last_n")
)
