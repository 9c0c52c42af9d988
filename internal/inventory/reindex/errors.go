package reindex

import "fmt"

// TypeLoadError aborts the load of one TMO. The load-order row of the type
// stays in place so the next run redoes it.
type TypeLoadError struct {
	TMOID int64
	// TPRMID is set when the failure belongs to one parameter type.
	TPRMID int64
	Err    error
}

func (e *TypeLoadError) Error() string {
	if e.TPRMID != 0 {
		return fmt.Sprintf("load tmo %d (tprm %d): %v", e.TMOID, e.TPRMID, e.Err)
	}
	return fmt.Sprintf("load tmo %d: %v", e.TMOID, e.Err)
}

func (e *TypeLoadError) Unwrap() error {
	return e.Err
}
