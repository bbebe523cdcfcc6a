package model

const ProtocolHTTP = "http"

// FieldType 校验器支持的字段类型
type FieldType string

const (
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldString  FieldType = "string"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

func (t FieldType) IsValid() bool {
	switch t {
	case FieldInteger, FieldNumber, FieldString, FieldBoolean, FieldArray, FieldObject:
		return true
	default:
		return false
	}
}

func (t FieldType) String() string {
	return string(t)
}

// FaultType simulate_error 注入的错误类型
type FaultType string

const (
	FaultTimeout      FaultType = "timeout"
	FaultNetworkError FaultType = "network_error"
	FaultServerError  FaultType = "server_error"
)

func (t FaultType) IsValid() bool {
	switch t {
	case FaultTimeout, FaultNetworkError, FaultServerError:
		return true
	default:
		return false
	}
}

// 谓词名称
const (
	PredicateMethod = "method"
	PredicatePath   = "path"
	PredicateHeader = "header"
	PredicateQuery  = "query"
	PredicateBody   = "body"
	PredicateExpr   = "expr"
)

// 匹配特异度权重
const (
	ScoreMethod          = 10
	ScorePathTemplate    = 20
	ScorePathRegex       = 5
	ScoreLiteralSegment  = 3
	ScoreWildcardPenalty = 2
	ScoreHeader          = 10
	ScoreQueryParam      = 5
	ScoreBody            = 15
	ScoreExpr            = 15
)
