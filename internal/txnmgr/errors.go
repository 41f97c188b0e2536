package txnmgr

import "fmt"

// ErrUnknownTransaction is returned by Lookup when a name was never
// begun. The tick-processing entry points (Begin, Read, Write, End, ...)
// do not return this: an instruction naming an unknown transaction is
// silently ignored there.
var ErrUnknownTransaction = fmt.Errorf("txnmgr: unknown transaction")
