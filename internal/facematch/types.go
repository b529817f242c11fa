// Package facematch provides bounding-box matching utilities shared between
// the legacy marker importer and the web handlers.
package facematch

// MatchAction represents what the importer did with a matched marker
type MatchAction string

const (
	ActionApplyName   MatchAction = "apply_name"   // Marker name applied to the owning person
	ActionMoveManual  MatchAction = "move_manual"  // Face moved manually to the named person
	ActionAlreadyDone MatchAction = "already_done" // Owning person already carries the marker name
	ActionSkipped     MatchAction = "skipped"      // Owning person was named by a user, marker name not applied
	ActionNoMatch     MatchAction = "no_match"     // No stored face overlapped the marker
)
