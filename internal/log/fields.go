package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"

	FieldBatchID       = "batch_id"
	FieldSource        = "source"
	FieldRowsRead      = "rows_read"
	FieldRowsImported  = "rows_imported"
	FieldRowsMalformed = "rows_malformed"
	FieldTransactionID = "transaction_id"
	FieldDescription   = "description"
	FieldCategory      = "category"
	FieldGoalID        = "goal_id"
	FieldMonth         = "month"
	FieldOffset        = "offset"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentImport  = "import"
	ComponentLedger  = "ledger"
	ComponentBudget  = "budget"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpImport   = "import"
	OpRead     = "read"
	OpUpdate   = "update"
	OpFlag     = "flag"
	OpCreate   = "create"
	OpDelete   = "delete"
	OpList     = "list"
	OpProgress = "progress"
	OpExport   = "export"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(errorType string) LogFields {
	f[FieldErrorType] = errorType
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithImport adds the outcome counters of a statement import.
func (f LogFields) WithImport(batchID, source string, read, imported, malformed int) LogFields {
	f[FieldBatchID] = batchID
	f[FieldSource] = source
	f[FieldRowsRead] = read
	f[FieldRowsImported] = imported
	f[FieldRowsMalformed] = malformed
	return f
}

func (f LogFields) WithTransaction(id int64, description, category string) LogFields {
	if id != 0 {
		f[FieldTransactionID] = id
	}
	f[FieldDescription] = description
	f[FieldCategory] = category
	return f
}

func (f LogFields) WithGoal(id int64, category string) LogFields {
	if id != 0 {
		f[FieldGoalID] = id
	}
	f[FieldCategory] = category
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
