// Package exitcodes defines the standard exit codes used by pagetrace.
package exitcodes

// Exit code constants used by pagetrace
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every scenario passes
// * TestFailure (1): Used when one or more scenarios fail
// * RuntimeErr (2): Used for runtime errors such as panics, bad configuration or IO failures
const (
	Success     = 0 // All scenarios pass
	TestFailure = 1 // Scenario failures
	RuntimeErr  = 2 // Runtime errors
)
