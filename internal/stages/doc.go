// Package stages implements the pipeline's stage handlers: thin adapters
// around the external transcription and summarization workers, plus the
// finalize step that archives completed items. The heavy lifting happens in
// the remote services; handlers translate between queue items and service
// calls and map failures onto the error taxonomy so the retry policy can
// classify them.
package stages
