package fanout

// Errors returns the errors of failed results.
func Errors(results []Result) []error {
	failures := make([]error, 0)
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, r.Err)
		}
	}
	return failures
}

// AllSucceeded checks if all results succeeded.
func AllSucceeded(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return false
		}
	}
	return true
}

// SuccessCount returns the number of successful results.
func SuccessCount(results []Result) int {
	count := 0
	for _, r := range results {
		if r.Err == nil {
			count++
		}
	}
	return count
}
