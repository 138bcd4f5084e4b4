package model

// Stable machine-readable error codes, persisted in job errors and returned
// by the HTTP surface.
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeDuplicateRequest      = "DUPLICATE_REQUEST"
	CodeRateLimited           = "RATE_LIMITED"
	CodePartialContentFailure = "PARTIAL_CONTENT_FAILURE"
	CodePartialAudioFailure   = "PARTIAL_AUDIO_FAILURE"
	CodeContentProviderError  = "CONTENT_PROVIDER_ERROR"
	CodeAudioProviderError    = "AUDIO_PROVIDER_ERROR"
	CodeStorageError          = "STORAGE_ERROR"
	CodeNotFound              = "NOT_FOUND"
)
