package model

// Error codes attached to failed verification results.
const (
	ErrorCodeValidation     = "validation_failed"
	ErrorCodeAuth           = "auth_failed"
	ErrorCodeTransport      = "transport_error"
	ErrorCodeVerification   = "verification_failed"
	ErrorCodeCreation       = "creation_failed"
	ErrorCodeReverification = "reverification_failed"
	ErrorCodeRetrieval      = "retrieval_failed"
	ErrorCodePayers         = "payers_failed"
	ErrorCodeConnection     = "connection_failed"
)
