package llm

import "github.com/casekit/evidence-extractor/constants"

// FieldSpec is one declarative extraction field, as configured per case or
// per template. Key is the JSON property the model is asked to fill.
type FieldSpec struct {
	Key         string              `json:"key"`
	Label       string              `json:"label"`
	Type        constants.FieldType `json:"type"`
	Required    bool                `json:"required"`
	Placeholder string              `json:"placeholder,omitempty"`
	Options     []string            `json:"options,omitempty"`
}

// DefaultExtractionFields is the evidence-material field set used when a case
// carries no override.
func DefaultExtractionFields() []FieldSpec {
	return []FieldSpec{
		{Key: "name", Label: "姓名", Type: constants.FieldText, Required: true},
		{Key: "gender", Label: "性别", Type: constants.FieldText},
		{Key: "ethnicity", Label: "民族", Type: constants.FieldText},
		{Key: "id_number", Label: "身份证号", Type: constants.FieldText, Required: true},
		{Key: "address", Label: "家庭住址", Type: constants.FieldTextarea},
		{Key: "contract_date", Label: "合同签订时间", Type: constants.FieldDate},
		{Key: "transfer_from", Label: "转账人", Type: constants.FieldText},
		{Key: "transfer_from_account", Label: "转账人银行账号", Type: constants.FieldText},
		{Key: "channel", Label: "渠道", Type: constants.FieldText},
		{Key: "transfer_time", Label: "转账时间", Type: constants.FieldDatetime},
		{Key: "transfer_to", Label: "收款人", Type: constants.FieldText},
		{Key: "transfer_to_account", Label: "收款人银行账号", Type: constants.FieldText},
	}
}
