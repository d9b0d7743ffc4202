package indexer

import "errors"

var (
	// ErrEmptyContent marks a document or chunk file with no text left after
	// normalization or splitting.
	ErrEmptyContent = errors.New("no content after processing")
	// ErrIndexBuildAborted is returned when the corpus has no chunks at all.
	// Nothing is written in that case.
	ErrIndexBuildAborted = errors.New("index build aborted: corpus has no chunks")
)
