package orchestrate

// BuildResult is what Run returns: the combined annotations and labels for
// the parent build, plus an optional JSON-encoded fail reason if at least
// one platform didn't succeed.
type BuildResult struct {
	FailReason  *string
	Annotations map[string]interface{}
	Labels      map[string]string
}

// IsRemoteImage reports whether every dispatched platform produced a usable
// remote image, i.e. no fail reason was recorded for any of them.
func (r *BuildResult) IsRemoteImage() bool {
	return r.FailReason == nil
}
