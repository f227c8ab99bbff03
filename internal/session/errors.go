package session

import "fmt"

// FetchError means the recognition package could not be downloaded.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch recognition package: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// EngineInitError means the engine process could not start or refused to
// build a recognizer from the package.
type EngineInitError struct {
	Err error
}

func (e *EngineInitError) Error() string { return fmt.Sprintf("create recognizer: %v", e.Err) }
func (e *EngineInitError) Unwrap() error { return e.Err }

// CacheClearError is reported when stale package entries could not be purged.
// It is logged and counted, never returned to callers.
type CacheClearError struct {
	Namespace string
	Err       error
}

func (e *CacheClearError) Error() string {
	return fmt.Sprintf("clear cache namespace %s: %v", e.Namespace, e.Err)
}
func (e *CacheClearError) Unwrap() error { return e.Err }
