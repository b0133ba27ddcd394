package pipeline

// Stage is a step of a single pipeline run.
type Stage int

const (
	StageInit Stage = iota
	StageFetching
	StageFiltering
	StageLoadingKnownIDs
	StageDiffing
	StagePersisting
	StageNotifying
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageInit:            "init",
	StageFetching:        "fetching",
	StageFiltering:       "filtering",
	StageLoadingKnownIDs: "loading_known_ids",
	StageDiffing:         "diffing",
	StagePersisting:      "persisting",
	StageNotifying:       "notifying",
	StageDone:            "done",
	StageFailed:          "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}
