package chat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"docqa-rag-api/internal/application/retrieval"
)

const (
	DefaultMaxMessageLength   = 6000
	DefaultMaxFocusTextLength = 500
	DefaultMaxFocusRange      = 10000
)

// injectionPatterns 常见的提示词注入片段，大小写不敏感
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)ignore\s+all\s+previous`),
	regexp.MustCompile(`(?i)disregard\s+previous`),
	regexp.MustCompile(`(?i)system\s*:`),
	regexp.MustCompile(`(?i)<\|im_start\|>`),
	regexp.MustCompile(`(?i)<\|im_end\|>`),
	regexp.MustCompile(`(?i)<\|endoftext\|>`),
	regexp.MustCompile(`(?i)\[INST\]`),
	regexp.MustCompile(`(?i)\[/INST\]`),
}

// ValidationError 输入不合法，Message 可直接返回给用户
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidationError 判断错误链中是否有 ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidatorConfig 校验上限
type ValidatorConfig struct {
	MaxMessageLength   int
	MaxFocusTextLength int
	MaxFocusRange      int
}

// FocusInput 客户端提交的阅读焦点
type FocusInput struct {
	DocumentID      string `json:"document_id" validate:"required,uuid"`
	StartChar       int    `json:"start_char" validate:"gte=0"`
	EndChar         int    `json:"end_char" validate:"gte=0"`
	SurroundingText string `json:"surrounding_text"`
}

// InputValidator 用户输入校验与清洗
type InputValidator struct {
	cfg      ValidatorConfig
	validate *validator.Validate
}

// NewInputValidator 未设置的上限使用默认值
func NewInputValidator(cfg ValidatorConfig) *InputValidator {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.MaxFocusTextLength <= 0 {
		cfg.MaxFocusTextLength = DefaultMaxFocusTextLength
	}
	if cfg.MaxFocusRange <= 0 {
		cfg.MaxFocusRange = DefaultMaxFocusRange
	}
	return &InputValidator{cfg: cfg, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateMessage 校验长度与注入片段，返回去除控制字符后的文本
func (v *InputValidator) ValidateMessage(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", &ValidationError{Field: "message", Message: "Message cannot be empty"}
	}
	// validator 的 max 对字符串按 rune 计数
	if err := v.validate.Var(message, fmt.Sprintf("max=%d", v.cfg.MaxMessageLength)); err != nil {
		return "", &ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("Message too long. Maximum %d characters.", v.cfg.MaxMessageLength),
		}
	}
	for _, p := range injectionPatterns {
		if p.MatchString(message) {
			return "", &ValidationError{Field: "message", Message: "Message contains invalid content. Please rephrase."}
		}
	}
	return StripControlChars(message), nil
}

// ValidateFocus 校验焦点区间，周边文本超长时截断而不是报错
func (v *InputValidator) ValidateFocus(in *FocusInput) (*retrieval.FocusContext, error) {
	if in == nil {
		return nil, nil
	}
	normalized := *in
	normalized.DocumentID = strings.ToLower(strings.TrimSpace(in.DocumentID))
	in = &normalized
	if err := v.validate.Struct(in); err != nil {
		return nil, focusFieldError(err)
	}
	if in.StartChar >= in.EndChar {
		return nil, &ValidationError{Field: "focus_context", Message: "start_char must be less than end_char"}
	}
	if in.EndChar-in.StartChar > v.cfg.MaxFocusRange {
		return nil, &ValidationError{Field: "focus_context", Message: "Focus range too large"}
	}
	return &retrieval.FocusContext{
		DocumentID:      in.DocumentID,
		StartChar:       in.StartChar,
		EndChar:         in.EndChar,
		SurroundingText: truncate(StripControlChars(in.SurroundingText), v.cfg.MaxFocusTextLength),
	}, nil
}

// ValidateID 校验会话或文档 ID 为 UUID
func (v *InputValidator) ValidateID(field, id string) error {
	if err := v.validate.Var(strings.ToLower(strings.TrimSpace(id)), "required,uuid"); err != nil {
		return &ValidationError{Field: field, Message: fmt.Sprintf("Invalid %s format", field)}
	}
	return nil
}

func focusFieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "focus_context", Message: "Invalid focus context"}
	}
	switch verrs[0].Field() {
	case "DocumentID":
		return &ValidationError{Field: "focus_context", Message: "Invalid document_id format"}
	default:
		return &ValidationError{Field: "focus_context", Message: "Character positions must be non-negative"}
	}
}

// StripControlChars 删除 ASCII 控制字符，保留换行、回车与制表符
func StripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
