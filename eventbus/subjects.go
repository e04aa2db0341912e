package eventbus

import "fmt"

// Subject patterns for mirrored run events.

func SubjectRunEvent(prefix, runID, event string) string {
	return fmt.Sprintf("%s.run.%s.%s", prefix, runID, event)
}

func SubjectRunResult(prefix, runID string) string {
	return fmt.Sprintf("%s.run.%s.result", prefix, runID)
}

// SubjectRunAll matches every subject of one run.
func SubjectRunAll(prefix, runID string) string {
	return fmt.Sprintf("%s.run.%s.>", prefix, runID)
}
