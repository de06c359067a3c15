package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按类别分组）
const (
	// 通用错误 (1000-1099)
	ErrUnknown      ErrorCode = 1000
	ErrInvalidParam ErrorCode = 1001

	// 参数校验错误 (1100-1999)
	ErrInvalidSettings    ErrorCode = 1100
	ErrNotEnoughPlayers   ErrorCode = 1101
	ErrNotAllReady        ErrorCode = 1102
	ErrEmptyClue          ErrorCode = 1103
	ErrClueTooLong        ErrorCode = 1104
	ErrEmptyName          ErrorCode = 1105
	ErrEmptyGuess         ErrorCode = 1106
	ErrUnknownWordPack    ErrorCode = 1107
	ErrInvalidWordPair    ErrorCode = 1108
	ErrMessageFormat      ErrorCode = 1109
	ErrUnknownCommand     ErrorCode = 1110
	ErrRosterExceedsLimit ErrorCode = 1111

	// 状态守卫错误 (2000-2999)
	ErrWrongPhase         ErrorCode = 2000
	ErrGameAlreadyStarted ErrorCode = 2001
	ErrGameNotStarted     ErrorCode = 2002
	ErrNotYourTurn        ErrorCode = 2003
	ErrRoomFull           ErrorCode = 2004
	ErrNotHost            ErrorCode = 2005
	ErrAlreadyJoined      ErrorCode = 2006
	ErrNameTaken          ErrorCode = 2007
	ErrDuplicateClue      ErrorCode = 2008
	ErrSelfVote           ErrorCode = 2009
	ErrPlayerEliminated   ErrorCode = 2010
	ErrInvalidTarget      ErrorCode = 2011
	ErrGuessNotAllowed    ErrorCode = 2012
	ErrInvalidTransition  ErrorCode = 2013
	ErrRoomClosed         ErrorCode = 2014
	ErrTooManyRooms       ErrorCode = 2015

	// 资源不存在 (3000-3999)
	ErrNotFound       ErrorCode = 3000
	ErrRoomNotFound   ErrorCode = 3001
	ErrPlayerNotFound ErrorCode = 3002

	// 安全错误 (4000-4999)
	ErrAuthentication    ErrorCode = 4000
	ErrTokenExpired      ErrorCode = 4001
	ErrTokenInvalid      ErrorCode = 4002
	ErrRateLimitExceeded ErrorCode = 4003

	// 存储错误 (5000-5999)
	ErrStorageUnavailable ErrorCode = 5000
	ErrDatabaseConnect    ErrorCode = 5001
	ErrDatabaseQuery      ErrorCode = 5002
	ErrDatabaseUpdate     ErrorCode = 5003
	ErrDatabaseDelete     ErrorCode = 5004
	ErrDataIntegrity      ErrorCode = 5005
	ErrRoomCodeExhausted  ErrorCode = 5006

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigValidate ErrorCode = 6001
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	ErrUnknown:      "未知错误",
	ErrInvalidParam: "无效的参数",

	ErrInvalidSettings:    "无效的房间设置",
	ErrNotEnoughPlayers:   "玩家人数不足",
	ErrNotAllReady:        "还有玩家未准备",
	ErrEmptyClue:          "描述不能为空",
	ErrClueTooLong:        "描述过长",
	ErrEmptyName:          "昵称不能为空",
	ErrEmptyGuess:         "猜测内容不能为空",
	ErrUnknownWordPack:    "未知的词库",
	ErrInvalidWordPair:    "无效的自定义词语",
	ErrMessageFormat:      "消息格式错误",
	ErrUnknownCommand:     "未知的指令",
	ErrRosterExceedsLimit: "当前人数超过新的人数上限",

	ErrWrongPhase:         "当前阶段不允许该操作",
	ErrGameAlreadyStarted: "游戏已经开始",
	ErrGameNotStarted:     "游戏未开始",
	ErrNotYourTurn:        "还没轮到你发言",
	ErrRoomFull:           "房间已满",
	ErrNotHost:            "只有房主可以执行该操作",
	ErrAlreadyJoined:      "玩家已在房间中",
	ErrNameTaken:          "昵称已被占用",
	ErrDuplicateClue:      "该描述已被使用",
	ErrSelfVote:           "不能投票给自己",
	ErrPlayerEliminated:   "玩家已出局",
	ErrInvalidTarget:      "无效的投票对象",
	ErrGuessNotAllowed:    "当前不能猜词",
	ErrInvalidTransition:  "非法的状态转换",
	ErrRoomClosed:         "房间已关闭",
	ErrTooManyRooms:       "房间数量已达上限",

	ErrNotFound:       "资源未找到",
	ErrRoomNotFound:   "房间不存在",
	ErrPlayerNotFound: "玩家不在房间中",

	ErrAuthentication:    "认证失败",
	ErrTokenExpired:      "令牌已过期",
	ErrTokenInvalid:      "无效的令牌",
	ErrRateLimitExceeded: "请求频率超限",

	ErrStorageUnavailable: "存储暂不可用",
	ErrDatabaseConnect:    "数据库连接失败",
	ErrDatabaseQuery:      "数据库查询失败",
	ErrDatabaseUpdate:     "数据库更新失败",
	ErrDatabaseDelete:     "数据库删除失败",
	ErrDataIntegrity:      "数据完整性错误",
	ErrRoomCodeExhausted:  "房间码生成失败",

	ErrConfigLoad:     "配置加载失败",
	ErrConfigValidate: "配置验证失败",
}

// Category 错误类别
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryGuard      Category = "guard"
	CategoryNotFound   Category = "not_found"
	CategoryAuth       Category = "auth"
	CategoryStorage    Category = "storage"
	CategoryInternal   Category = "internal"
)

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// Category 返回错误类别
func (e *AppError) Category() Category {
	return categoryOf(e.Code)
}

func categoryOf(code ErrorCode) Category {
	switch {
	case code >= 1001 && code <= 1999:
		return CategoryValidation
	case code >= 2000 && code <= 2999:
		return CategoryGuard
	case code >= 3000 && code <= 3999:
		return CategoryNotFound
	case code >= 4000 && code <= 4999:
		return CategoryAuth
	case code >= 5000 && code <= 5999:
		return CategoryStorage
	default:
		return CategoryInternal
	}
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := As(err); ok {
		if len(details) == 0 {
			return appErr
		}
		wrapped := *appErr
		wrapped.Details = strings.Join(details, "; ")
		if appErr.Details != "" {
			wrapped.Details += "; " + appErr.Details
		}
		return &wrapped
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// As 提取错误链中的AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := As(err); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// CategoryOf 获取错误类别
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	return categoryOf(GetCode(err))
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "undercover-game/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more || len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrRateLimitExceeded:
		return 429 // Too Many Requests
	}
	switch e.Category() {
	case CategoryValidation:
		return 400 // Bad Request
	case CategoryGuard:
		return 409 // Conflict
	case CategoryNotFound:
		return 404 // Not Found
	case CategoryAuth:
		return 401 // Unauthorized
	case CategoryStorage:
		return 503 // Service Unavailable
	default:
		return 500 // Internal Server Error
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrStorageUnavailable,
		ErrDatabaseConnect,
		ErrDatabaseQuery,
		ErrDatabaseUpdate,
		ErrDatabaseDelete:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrDatabaseConnect,
		ErrConfigLoad,
		ErrDataIntegrity:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	Category  Category  `json:"category,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		Category:  err.Category(),
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
