package constants

// FieldType enumerates the declared value types a field descriptor may carry.
// Unknown strings degrade to FieldText at schema-build time.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldDate     FieldType = "date"
	FieldDatetime FieldType = "datetime"
	FieldNumber   FieldType = "number"
)

// Wire formats the extractor asks the model for and the validator accepts.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05"
)
