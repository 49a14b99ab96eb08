package domain

// Stage names a step of the chapter pipeline.
type Stage string

const (
	StageDraft    Stage = "draft"
	StageEnrich   Stage = "enrich"
	StageFinalize Stage = "finalize"
)

// ChapterState is the pipeline state of a single chapter.
type ChapterState string

const (
	ChapterStateNotStarted      ChapterState = "not_started"
	ChapterStateDraftPending    ChapterState = "draft_pending"
	ChapterStateDraftDone       ChapterState = "draft_done"
	ChapterStateEnrichPending   ChapterState = "enrich_pending"
	ChapterStateFinalizePending ChapterState = "finalize_pending"
	ChapterStateFinalizeDone    ChapterState = "finalize_done"
	ChapterStateFailed          ChapterState = "failed"
)

// GenerationParams are the narrative inputs passed through to the generator.
type GenerationParams struct {
	Topic              string
	Genre              string
	UserGuidance       string
	CharactersInvolved string
	KeyItems           string
	SceneLocation      string
	TimeConstraint     string
}

// ChapterRequest is everything a generation stage needs for one chapter.
type ChapterRequest struct {
	Number        int
	TotalChapters int
	WordNumber    int
	Params        GenerationParams
}
