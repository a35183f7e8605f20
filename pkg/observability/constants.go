package observability

// Span names for the per-turn pipeline.
const (
	SpanTurn         = "tutor.turn"
	SpanLLMRequest   = "tutor.llm.request"
	SpanRetrieval    = "tutor.retrieval.search"
	SpanEmbedding    = "tutor.embedding"
	SpanSessionStart = "tutor.session.start"
	SpanSessionEnd   = "tutor.session.end"
)

// Attribute keys.
const (
	AttrSessionID       = "tutor.session_id"
	AttrTurnNumber      = "tutor.turn_number"
	AttrFSMState        = "tutor.fsm_state"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrDocsRetrieved   = "retrieval.documents"
)
