package worker

// Content types as reported in metric labels.
const (
	ContentTypeVoice = "voice"
	ContentTypeText  = "text"
)

// InboundMessage is the transport-neutral view of a Telegram message.
type InboundMessage struct {
	ChatID       int64
	ChatType     string
	ContentType  string
	MessageID    int
	FileID       string
	FileUniqueID string
	MIME         string
	FileSize     int64
	// Duration is the length in seconds reported by Telegram, not by the ASR engine.
	Duration int
}

// OutcomeKind tells how processing of a message ended.
type OutcomeKind int

const (
	OutcomeFailed OutcomeKind = iota
	OutcomeReplied
	OutcomeEmpty
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReplied:
		return "replied"
	case OutcomeEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// Stage names the pipeline step an outcome refers to.
type Stage string

const (
	StageFetch      Stage = "fetch"
	StageDecode     Stage = "decode"
	StageTranscribe Stage = "transcribe"
	StageReply      Stage = "reply"
	StageDone       Stage = "done"
)

// Outcome is the result of processing one voice message. Failures are values,
// never panics or errors propagated to the poll loop.
type Outcome struct {
	Kind  OutcomeKind
	Stage Stage
	Text  string
	// Duration is the engine-reported audio length in seconds.
	Duration float64
	Cached   bool
	Err      error
}

// Succeeded reports whether transcription finished, with or without text.
func (o Outcome) Succeeded() bool {
	return o.Kind != OutcomeFailed
}

func failed(stage Stage, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Stage: stage, Err: err}
}
