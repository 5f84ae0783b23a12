// Package mem allocates large anonymous memory regions for mining datasets.
//
// A [Buffer] owns exactly one mapping. The allocation strategy is chosen once,
// at construction, from [Options]:
//
//	1 GiB pages  (Options.OneGBPages)
//	2 MiB pages  (Options.HugePages or Options.OneGBPages)
//	standard pages
//
// Strategies are tried in that order and the first one that succeeds wins.
// Falling back is not an error: it is reported through [Buffer.Pages], which
// counts how many 2 MiB pages were requested and how many were actually
// backed by huge pages.
//
// # Lifetime
//
// A Buffer is writable until [Buffer.Seal] is called, after which the mapping
// is read-only (enforced by mprotect on Linux). [Buffer.Close] releases the
// mapping; it is idempotent so it can be deferred on every error path.
package mem
